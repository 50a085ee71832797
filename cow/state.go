// state.go - the promotion state machine
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package cow

// State is a single promotion's position in the linear pipeline:
// init -> parents-ok -> source-statted -> type-dispatched ->
// data-copied -> metadata-applied -> done. Any error transitions to
// Failed and is reported to the caller with no cleanup of partial
// destination state - the next promotion attempt finds and
// overwrites what remains.
type State int

const (
	StateInit State = iota
	StateParentsOK
	StateSourceStatted
	StateTypeDispatched
	StateDataCopied
	StateMetadataApplied
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateParentsOK:
		return "parents-ok"
	case StateSourceStatted:
		return "source-statted"
	case StateTypeDispatched:
		return "type-dispatched"
	case StateDataCopied:
		return "data-copied"
	case StateMetadataApplied:
		return "metadata-applied"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
