package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait      = 1 * time.Second
	pingResolution = 200 * time.Millisecond
	// Publish interval used when none is configured.
	defaultInterval = 100 * time.Millisecond
	// Number of lost pings tolerated before the peer is considered gone.
	pongWait = pingResolution * 4

	writeDeadline    = time.Second
	closeGracePeriod = time.Second
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded is returned by Sync when the peer stops answering pings.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

// client publishes idempotent updates to one websocket peer. Updates arriving
// faster than the publish interval are coalesced: only the latest is sent,
// on the next tick.
type client[T any] struct {
	updates  <-chan T
	interval time.Duration
	ws       *websock
	rootCtx  context.Context
}

func newClient[T any](
	updates <-chan T,
	interval time.Duration,
	w http.ResponseWriter,
	r *http.Request,
) (*client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	if interval <= 0 {
		interval = defaultInterval
	}
	return &client[T]{
		updates:  updates,
		interval: interval,
		ws:       newWebsock(ws),
		rootCtx:  r.Context(),
	}, nil
}

// Sync runs the reader, the ping-pong liveness check and the publisher until
// one of them fails or the peer goes away. A normal disconnect returns nil.
func (cli *client[T]) Sync() error {
	defer cli.ws.Close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})
	group.Go(func() error {
		// unblocks readMessages once any routine is done
		<-groupCtx.Done()
		return cli.ws.Conn().SetReadDeadline(time.Now())
	})

	if err := group.Wait(); err != nil && !isClosure(err) {
		return err
	}
	return nil
}

// pingPong requires readMessages to be running so the pong handler is called.
func (cli *client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %T %v", err, err)
				}
			}
			return
		})
}

// readMessages discards peer messages. Errors returned by websocket reads are
// permanent, so any error ends the client.
func (cli *client[T]) readMessages(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _, err := cli.ws.Conn().ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (cli *client[T]) publish(ctx context.Context) error {
	var (
		pending  T
		dirty    bool
		lastSync time.Time
	)
	ticker := channerics.NewTicker(ctx.Done(), cli.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return nil
			}
			pending, dirty = update, true
			if time.Since(lastSync) < cli.interval {
				continue
			}
		case <-ticker:
			if !dirty {
				continue
			}
		}

		lastSync = time.Now()
		dirty = false
		if err := cli.send(ctx, pending); err != nil {
			return err
		}
	}
}

func (cli *client[T]) send(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
			}
			if writeErr = ws.WriteJSON(update); writeErr != nil {
				if isError(writeErr) {
					writeErr = fmt.Errorf("publish failed: %T %v", writeErr, writeErr)
				}
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// websock serializes writes to the websocket, which allows one concurrent
// writer at a time.
type websock struct {
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket. Only the reader and setup code may
// use it directly.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close message and closes the connection. No writers may
// remain.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}

	_ = sock.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sock.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	sock.ws.Close()
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
