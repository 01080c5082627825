package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Default bound on a single fan-out arm.
const DefaultPeerTimeout = 3 * time.Second

// Result classifies the peers after a fan-out, by base URL. The three
// slices are disjoint and together cover every configured peer.
type Result struct {
	Acks      []string
	Conflicts []string
	Failures  []string
}

// Client pushes change records to the configured peers. It is safe for
// concurrent use; peers and token are fixed at construction.
type Client struct {
	peers   []string
	token   string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a push client. peers are base URLs; token is the
// outbound bearer token; a non-positive timeout falls back to
// DefaultPeerTimeout.
func NewClient(peers []string, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultPeerTimeout
	}
	return &Client{
		peers:   append([]string(nil), peers...),
		token:   token,
		timeout: timeout,
		// Per-request deadlines come from the context; the client itself
		// carries no timeout so a slow peer cannot shadow the config value.
		http: &http.Client{},
	}
}

// Peers returns the configured peer base URLs.
func (c *Client) Peers() []string {
	return append([]string(nil), c.peers...)
}

// outcome of one fan-out arm.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeConflict
	outcomeFailure
)

// Push fans change out to every peer concurrently and waits for all arms
// to settle; there is no early return on first conflict. Each arm is
// bounded by the client's per-request timeout. HTTP 200 is an ack, 409 a
// conflict, and any other status, network error, or timeout a failure.
func (c *Client) Push(ctx context.Context, change Change) Result {
	var res Result
	if len(c.peers) == 0 {
		return res
	}

	body, err := json.Marshal(change)
	if err != nil {
		// A change assembled from decoded JSON cannot fail to encode; if
		// it somehow does, every peer missed the push.
		logrus.WithError(err).Error("encode change record")
		res.Failures = append(res.Failures, c.peers...)
		return res
	}

	outcomes := make([]outcome, len(c.peers))
	done := make(chan int, len(c.peers))
	for i, peer := range c.peers {
		go func(i int, peer string) {
			outcomes[i] = c.pushOne(ctx, peer, body)
			done <- i
		}(i, peer)
	}
	for range c.peers {
		<-done
	}

	for i, peer := range c.peers {
		switch outcomes[i] {
		case outcomeAck:
			res.Acks = append(res.Acks, peer)
		case outcomeConflict:
			res.Conflicts = append(res.Conflicts, peer)
		case outcomeFailure:
			res.Failures = append(res.Failures, peer)
		}
	}
	return res
}

// pushOne POSTs the change to a single peer's /replicate endpoint.
func (c *Client) pushOne(ctx context.Context, peer string, body []byte) outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+"/replicate", bytes.NewReader(body))
	if err != nil {
		logrus.WithField("peer", peer).WithError(err).Warn("build replicate request")
		return outcomeFailure
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		logrus.WithField("peer", peer).WithError(err).Warn("push to peer")
		return outcomeFailure
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return outcomeAck
	case http.StatusConflict:
		return outcomeConflict
	default:
		logrus.WithFields(logrus.Fields{
			"peer":   peer,
			"status": resp.StatusCode,
		}).Warn("unexpected replicate status")
		return outcomeFailure
	}
}
