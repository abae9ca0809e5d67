package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrPeerUnsupported is returned where peer credentials cannot be read.
var ErrPeerUnsupported = errors.New("peer credentials not supported")

// PeerCredentials holds the credentials of a peer process
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// VerifyPeerIsCurrentUser checks if the peer is running as the current user.
// Where credentials are unavailable the socket file mode is the only check.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	cred, err := GetPeerCredentials(conn)
	if errors.Is(err, ErrPeerUnsupported) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return cred.UID == os.Getuid(), nil
}

// CleanupSocket removes a stale socket file
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a socket is already listening
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
