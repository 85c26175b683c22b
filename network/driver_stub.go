//go:build !linux

package network

import (
	"errors"

	"github.com/lhmouse/poseidon/config"
	"github.com/lhmouse/poseidon/logger"
	"github.com/lhmouse/poseidon/socket"
)

var errUnsupported = errors.New("network: epoll driver requires linux")

// Driver is a stand-in on platforms without epoll. Poseidon's network
// driver is Linux-only, matching the source, which targets epoll
// exclusively and excludes io_uring/kqueue/IOCP backends.
type Driver struct{}

func NewDriver(log *logger.Logger) (*Driver, error) { return nil, errUnsupported }

func (d *Driver) SetPanicHandler(fn func(err any, s *socket.Base)) {}
func (d *Driver) Reload(store *config.Store) error                { return errUnsupported }
func (d *Driver) Insert(sock *socket.Base) error                  { return errUnsupported }
func (d *Driver) Rearm(sock *socket.Base) error                   { return errUnsupported }
func (d *Driver) Run()                                            {}
func (d *Driver) Stop()                                           {}
func (d *Driver) Len() int                                        { return 0 }
