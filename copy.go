// copy.go - data transfer primitives for regular-file promotion
//
// (c) 2021 Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package unionfs

import (
	"io"
	"os"

	"github.com/opencoff/go-mmap"
)

// MmapThreshold is the largest source size that CopyViaMmap will
// handle; CowEngine dispatches to CopyViaBuffer above this.
const MmapThreshold int64 = 8 << 20 // 8 MiB

// MaxBSize is the bounce-buffer size used by CopyViaBuffer, named
// after the historical BSD cp(1) MAXBSIZE.
const MaxBSize = 4096

// CopyViaMmap maps 'src' shared and writes the whole region to 'dst'
// in one write. Used for sources in (0, MmapThreshold].
func CopyViaMmap(dst, src *os.File) error {
	_, err := mmap.Reader(src, func(b []byte) error {
		_, err := fullWrite(dst, b)
		return err
	})
	if err != nil {
		return &CopyError{"mmap-reader", src.Name(), dst.Name(), err}
	}
	return nil
}

// CopyViaBuffer loops over a fixed MaxBSize bounce buffer; a short
// write is treated as fatal to the promotion job.
func CopyViaBuffer(dst, src *os.File) error {
	buf := make([]byte, MaxBSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := fullWrite(dst, buf[:n]); werr != nil {
				return &CopyError{"write", src.Name(), dst.Name(), werr}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return &CopyError{"read", src.Name(), dst.Name(), rerr}
		}
	}
}

// CopyData picks the mmap or bounce-buffer strategy based on the
// source size.
func CopyData(dst, src *os.File, size int64) error {
	if size > 0 && size <= MmapThreshold {
		return CopyViaMmap(dst, src)
	}
	return CopyViaBuffer(dst, src)
}

// CopyFd copies the entirety of the already-open 'src' into 'dst',
// sizing the strategy off of a fresh stat(2) of src. Used by
// SafeFile's OPT_COW path to clone an existing file's contents into
// the new temp file before the caller overwrites it.
func CopyFd(dst, src *os.File) error {
	st, err := src.Stat()
	if err != nil {
		return &CopyError{"stat-src", src.Name(), dst.Name(), err}
	}
	return CopyData(dst, src, st.Size())
}
