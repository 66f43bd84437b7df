//go:build !unix

package runlock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("runlock: file locking is not supported on this platform")

func tryLock(*os.File) error { return errUnsupported }

func unlock(*os.File) error { return nil }
