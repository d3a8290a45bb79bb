// Package transfer copies model directories to and from Cloud Storage by
// running the gsutil command line tool.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultBinary is the gsutil executable looked up in PATH.
const DefaultBinary = "gsutil"

// Error reports a failed copy.
type Error struct {
	Op     string // "fetch" or "push"
	Remote string
	Local  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s <-> %s: %v", e.Op, e.Remote, e.Local, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client runs gsutil.
type Client struct {
	// Binary is the gsutil executable; DefaultBinary when empty.
	Binary string
}

// New returns a Client using gsutil from PATH.
func New() *Client {
	return &Client{Binary: DefaultBinary}
}

// Fetch copies the contents of the remote directory into local. A missing
// remote model is an expected outcome, so failures are logged and reported as false.
func (c *Client) Fetch(ctx context.Context, remote, local string) bool {
	klog.Infof("Attempting to download model from %s ...", remote)
	if err := c.copy(ctx, "fetch", remote, local, contents(remote), local); err != nil {
		klog.Infof("No existing model found in %s (or download failed): %v", remote, err)
		return false
	}
	klog.Infof("Model downloaded from %s", remote)
	return true
}

// Push copies the contents of local into the remote directory.
func (c *Client) Push(ctx context.Context, local, remote string) error {
	klog.Infof("Uploading model to %s ...", remote)
	if err := c.copy(ctx, "push", remote, local, contents(local), remote); err != nil {
		return err
	}
	klog.Infof("Model uploaded to %s", remote)
	return nil
}

// contents turns a directory into the gsutil wildcard of its entries, so the
// entries land directly in the destination instead of a nested directory.
func contents(dir string) string {
	return strings.TrimRight(dir, "/") + "/*"
}

func (c *Client) copy(ctx context.Context, op, remote, local, src, dst string) error {
	binary := c.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	binPath, err := exec.LookPath(binary)
	if err != nil {
		return &Error{Op: op, Remote: remote, Local: local, Err: errors.Wrapf(err, "cannot find %q", binary)}
	}
	cmd := exec.CommandContext(ctx, binPath, "-m", "cp", "-r", src, dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	klog.V(1).Infof("Running %s", cmd)
	if err = cmd.Run(); err != nil {
		err = errors.Wrapf(err, "failed executing %q", cmd)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithMessagef(err, "STDERR captured:\n%s\n", msg)
		}
		return &Error{Op: op, Remote: remote, Local: local, Err: err}
	}
	return nil
}
