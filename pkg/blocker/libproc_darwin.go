//go:build darwin

package blocker

/*
#include <libproc.h>
#include <sys/proc_info.h>
#include <pwd.h>
#include <stdlib.h>
#include <string.h>

// pwnam_buf_size returns a safe scratch-buffer size for getpwuid_r, or a
// sane fallback if the system does not advertise one.
static long pwnam_buf_size(void) {
	long size = sysconf(_SC_GETPW_R_SIZE_MAX);
	if (size <= 0) {
		size = 16384;
	}
	return size;
}
*/
import "C"

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"k8s.io/klog/v2"
)

// libprocDiagnoser implements Diagnoser against libproc and the BSD
// process tables, following the buffer-sized call pattern of spec.md
// §4.7: query the OS for the required buffer size, then fill it.
type libprocDiagnoser struct{}

// NewDiagnoser returns the libproc-backed Diagnoser.
func NewDiagnoser() Diagnoser {
	return &libprocDiagnoser{}
}

func (d *libprocDiagnoser) Diagnose(ctx context.Context, volumePath string) ([]ProcessInfo, error) {
	absPath, err := filepath.Abs(volumePath)
	if err != nil {
		absPath = volumePath
	}

	pids, err := listAllPIDs()
	if err != nil {
		return nil, fmt.Errorf("blocker: listing pids: %w", err)
	}

	seen := make(map[int]bool, len(pids))
	var blocking []int
	for _, pid := range pids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if pid == 0 || seen[pid] {
			continue
		}
		seen[pid] = true

		if processHoldsPath(pid, absPath) {
			blocking = append(blocking, pid)
		}
	}

	results := make([]ProcessInfo, 0, len(blocking))
	for _, pid := range blocking {
		results = append(results, ProcessInfo{
			PID:     pid,
			Command: commandFor(pid),
			User:    userFor(pid),
		})
	}

	klog.V(2).Infof("blocker: %s is held open by %d process(es)", absPath, len(results))
	return results, nil
}

// listAllPIDs calls proc_listallpids twice: once to learn the required
// buffer size, once to fill it.
func listAllPIDs() ([]int, error) {
	n := C.proc_listallpids(nil, 0)
	if n <= 0 {
		return nil, fmt.Errorf("proc_listallpids: size query failed")
	}

	buf := make([]C.pid_t, n*2) // generous margin: the process table can grow between calls
	filled := C.proc_listallpids(unsafe.Pointer(&buf[0]), C.int(len(buf))*C.int(unsafe.Sizeof(buf[0])))
	if filled <= 0 {
		return nil, fmt.Errorf("proc_listallpids: fill failed")
	}

	pids := make([]int, 0, filled)
	for i := 0; i < int(filled); i++ {
		pids = append(pids, int(buf[i]))
	}
	return pids, nil
}

// processHoldsPath lists pid's open file descriptors and asks the kernel
// for the vnode path of each one that is a vnode, stopping at the first
// match under volumePath.
func processHoldsPath(pid int, volumePath string) bool {
	size := C.proc_pidinfo(C.int(pid), C.PROC_PIDLISTFDS, 0, nil, 0)
	if size <= 0 {
		return false
	}

	count := int(size) / int(unsafe.Sizeof(C.struct_proc_fdinfo{}))
	if count == 0 {
		return false
	}
	fds := make([]C.struct_proc_fdinfo, count)
	filled := C.proc_pidinfo(C.int(pid), C.PROC_PIDLISTFDS, 0, unsafe.Pointer(&fds[0]), size)
	if filled <= 0 {
		return false
	}

	for _, fd := range fds {
		if fd.proc_fdtype != C.PROX_FDTYPE_VNODE {
			continue
		}
		var vnodeInfo C.struct_vnode_fdinfowithpath
		n := C.proc_pidfdinfo(C.int(pid), fd.proc_fd, C.PROC_PIDFDVNODEPATHINFO, unsafe.Pointer(&vnodeInfo), C.int(unsafe.Sizeof(vnodeInfo)))
		if n <= 0 {
			continue
		}
		path := C.GoString(&vnodeInfo.pvip.vip_path[0])
		if strings.HasPrefix(path, volumePath) {
			return true
		}
	}
	return false
}

// commandFor reduces pid's executable path to its basename, per
// spec.md §4.7 step 3.
func commandFor(pid int) string {
	buf := make([]C.char, C.PROC_PIDPATHINFO_MAXSIZE)
	n := C.proc_pidpath(C.int(pid), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))
	if n <= 0 {
		return ""
	}
	return filepath.Base(C.GoString(&buf[0]))
}

// userFor resolves pid's owning uid to a username via the user database,
// falling back to the decimal uid string on lookup failure.
func userFor(pid int) string {
	var info C.struct_proc_bsdshortinfo
	n := C.proc_pidinfo(C.int(pid), C.PROC_PIDT_SHORTBSDINFO, 0, unsafe.Pointer(&info), C.int(unsafe.Sizeof(info)))
	if n <= 0 {
		return ""
	}
	uid := uint32(info.pbsi_uid)

	bufSize := C.pwnam_buf_size()
	buf := C.malloc(C.size_t(bufSize))
	defer C.free(buf)

	var pwd C.struct_passwd
	var result *C.struct_passwd
	rc := C.getpwuid_r(C.uid_t(uid), &pwd, (*C.char)(buf), C.size_t(bufSize), &result)
	if rc != 0 || result == nil {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return C.GoString(pwd.pw_name)
}
