//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// osMap maps a read-only view of the first size bytes of f.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	section, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, nil, os.NewSyscallError("CreateFileMapping", err)
	}
	// An open view keeps the section alive after its handle is closed.
	defer windows.CloseHandle(section)

	base, err := windows.MapViewOfFile(section, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		return nil, nil, os.NewSyscallError("MapViewOfFile", err)
	}
	unmap := func([]byte) error {
		return os.NewSyscallError("UnmapViewOfFile", windows.UnmapViewOfFile(base))
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), unmap, nil
}

// osAdvise ignores access hints; Windows views have no madvise.
func osAdvise([]byte, Advice) error { return nil }
