// Package client is the thin client-side library for vectord: it builds
// wire requests, creates a uniquely-named reply queue, sends the request on
// the matching intake queue, and waits for the single reply — the "thin
// glue" this package is scoped down to.
package client

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/adred-codev/vectord/internal/proto"
	"github.com/adred-codev/vectord/internal/queue"
)

// Well-known intake queue names.
const (
	InitQueueName    = "/init"
	SetQueueName     = "/set"
	GetQueueName     = "/get"
	DestroyQueueName = "/destroy"
)

var replyCounter int64

// nextReplyQueueName builds a reply-queue name guaranteed unique within this
// process: <prefix><pid>-<monotonic counter>, truncated to fit
// proto.MaxReplyQueueLen. The counter makes collisions impossible for the
// lifetime of the process, unlike a scheme relying on a single random digit.
func nextReplyQueueName(prefix string) string {
	n := atomic.AddInt64(&replyCounter, 1)
	name := fmt.Sprintf("/%s%d-%d", prefix, os.Getpid(), n)
	if len(name) > proto.MaxReplyQueueLen {
		name = name[:proto.MaxReplyQueueLen]
	}
	return name
}

// Client talks to a vectord server sharing the given queue.Registry. In the
// current single-process transport (see DESIGN.md's "cross-process
// transport narrowing"), Client and the server it talks to must share a
// process image.
type Client struct {
	queues  *queue.Registry
	timeout time.Duration
}

// New returns a Client against queues, using timeout as the default wait
// for a reply (0 means wait forever).
func New(queues *queue.Registry, timeout time.Duration) *Client {
	return &Client{queues: queues, timeout: timeout}
}

func (c *Client) openReplyQueue(prefix string, msgSize int) (string, *queue.Queue, error) {
	name := nextReplyQueueName(prefix)
	q, err := c.queues.Create(name, msgSize, 1, true)
	if err != nil {
		return "", nil, fmt.Errorf("client: opening reply queue: %w", err)
	}
	return name, q, nil
}

func (c *Client) awaitReply(ctx context.Context, replyName string, q *queue.Queue) ([]byte, error) {
	defer c.queues.Unlink(replyName)

	deadline := time.Now().Add(c.timeout)
	for {
		msg, err := q.TryReceive()
		if err == nil {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if c.timeout > 0 && time.Now().After(deadline) {
			return nil, fmt.Errorf("client: timed out waiting for reply on %s", replyName)
		}
		time.Sleep(time.Millisecond)
	}
}

// Create sends a Create request and waits for its IntReply status.
func (c *Client) Create(ctx context.Context, name string, size int) (int32, error) {
	replyName, replyQ, err := c.openReplyQueue("initvec", proto.IntReply{}.WireSize())
	if err != nil {
		return 0, err
	}

	req := proto.CreateReq{Name: name, Size: int32(size), ReplyQueue: replyName}
	buf, err := req.MarshalBinary()
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	intake, err := c.queues.Open(InitQueueName)
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}
	if err := intake.Send(buf); err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	raw, err := c.awaitReply(ctx, replyName, replyQ)
	if err != nil {
		return 0, err
	}
	var rep proto.IntReply
	if err := rep.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return rep.Status, nil
}

// Set sends a Set request and waits for its IntReply status.
func (c *Client) Set(ctx context.Context, name string, pos, value int) (int32, error) {
	replyName, replyQ, err := c.openReplyQueue("setval", proto.IntReply{}.WireSize())
	if err != nil {
		return 0, err
	}

	req := proto.SetReq{Name: name, Pos: int32(pos), Value: int32(value), ReplyQueue: replyName}
	buf, err := req.MarshalBinary()
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	intake, err := c.queues.Open(SetQueueName)
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}
	if err := intake.Send(buf); err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	raw, err := c.awaitReply(ctx, replyName, replyQ)
	if err != nil {
		return 0, err
	}
	var rep proto.IntReply
	if err := rep.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return rep.Status, nil
}

// Get sends a Get request and waits for its GetReply value/status.
func (c *Client) Get(ctx context.Context, name string, pos int) (int32, int32, error) {
	replyName, replyQ, err := c.openReplyQueue("getval", proto.GetReply{}.WireSize())
	if err != nil {
		return 0, 0, err
	}

	req := proto.GetReq{Name: name, Pos: int32(pos), ReplyQueue: replyName}
	buf, err := req.MarshalBinary()
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, 0, err
	}

	intake, err := c.queues.Open(GetQueueName)
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, 0, err
	}
	if err := intake.Send(buf); err != nil {
		c.queues.Unlink(replyName)
		return 0, 0, err
	}

	raw, err := c.awaitReply(ctx, replyName, replyQ)
	if err != nil {
		return 0, 0, err
	}
	var rep proto.GetReply
	if err := rep.UnmarshalBinary(raw); err != nil {
		return 0, 0, err
	}
	return rep.Value, rep.Status, nil
}

// Destroy sends a Destroy request and waits for its IntReply status.
func (c *Client) Destroy(ctx context.Context, name string) (int32, error) {
	replyName, replyQ, err := c.openReplyQueue("destr", proto.IntReply{}.WireSize())
	if err != nil {
		return 0, err
	}

	req := proto.DestroyReq{Name: name, ReplyQueue: replyName}
	buf, err := req.MarshalBinary()
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	intake, err := c.queues.Open(DestroyQueueName)
	if err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}
	if err := intake.Send(buf); err != nil {
		c.queues.Unlink(replyName)
		return 0, err
	}

	raw, err := c.awaitReply(ctx, replyName, replyQ)
	if err != nil {
		return 0, err
	}
	var rep proto.IntReply
	if err := rep.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return rep.Status, nil
}
