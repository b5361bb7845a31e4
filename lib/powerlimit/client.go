// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package powerlimit

import (
	"context"
	"os"

	"github.com/wattson-project/wattson/lib/config"
)

type request interface{ isRequest() }

type valueReply[T any] struct {
	value T
	err   error
}

type rangeReply struct {
	value config.Range
	err   error
}

type setLimitRequest struct {
	watts uint32
	reply chan error
}

type getLimitRequest struct {
	reply chan valueReply[uint32]
}

type getRangeRequest struct {
	reply chan rangeReply
}

type isActiveRequest struct {
	reply chan valueReply[bool]
}

type enterLeaseRequest struct {
	key   string
	reply chan valueReply[*os.File]
}

type listLeasesRequest struct {
	reply chan map[string]uint32
}

func (setLimitRequest) isRequest()   {}
func (getLimitRequest) isRequest()   {}
func (getRangeRequest) isRequest()   {}
func (isActiveRequest) isRequest()   {}
func (enterLeaseRequest) isRequest() {}
func (listLeasesRequest) isRequest() {}

// Client submits commands to a running Arbiter. Obtain one via
// Arbiter.Client; the zero value is not usable.
type Client struct {
	requests chan<- request
}

func submit[R any](ctx context.Context, c *Client, r request, reply chan R) (R, error) {
	var zero R
	select {
	case c.requests <- r:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case value := <-reply:
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// SetLimit requests a new power limit in watts. The request is
// validated against the driver's range; while leases are held a valid
// request succeeds without touching the hardware.
func (c *Client) SetLimit(ctx context.Context, watts uint32) error {
	reply := make(chan error, 1)
	err, submitErr := submit(ctx, c, setLimitRequest{watts: watts, reply: reply}, reply)
	if submitErr != nil {
		return submitErr
	}
	return err
}

// Limit reads the current limit in watts from the hardware.
func (c *Client) Limit(ctx context.Context) (uint32, error) {
	reply := make(chan valueReply[uint32], 1)
	r, err := submit(ctx, c, getLimitRequest{reply: reply}, reply)
	if err != nil {
		return 0, err
	}
	return r.value, r.err
}

// LimitRange reports the valid limit range in watts.
func (c *Client) LimitRange(ctx context.Context) (config.Range, error) {
	reply := make(chan rangeReply, 1)
	r, err := submit(ctx, c, getRangeRequest{reply: reply}, reply)
	if err != nil {
		return config.Range{}, err
	}
	return r.value, r.err
}

// Active reports whether the limit method is currently usable.
func (c *Client) Active(ctx context.Context) (bool, error) {
	reply := make(chan valueReply[bool], 1)
	r, err := submit(ctx, c, isActiveRequest{reply: reply}, reply)
	if err != nil {
		return false, err
	}
	return r.value, r.err
}

// EnterLease takes a lease under key and returns its liveness token.
// The lease holds until the token is closed or the holder exits. When
// leasing is disabled by configuration the returned token is nil with
// a nil error.
func (c *Client) EnterLease(ctx context.Context, key string) (*os.File, error) {
	reply := make(chan valueReply[*os.File], 1)
	r, err := submit(ctx, c, enterLeaseRequest{key: key, reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return r.value, r.err
}

// Leases returns a snapshot of held leases and their reference counts.
func (c *Client) Leases(ctx context.Context) (map[string]uint32, error) {
	reply := make(chan map[string]uint32, 1)
	return submit(ctx, c, listLeasesRequest{reply: reply}, reply)
}
