// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"

	"github.com/wattson-project/wattson/lib/codec"
	"github.com/wattson-project/wattson/lib/control"
	"github.com/wattson-project/wattson/lib/daemon"
	"github.com/wattson-project/wattson/lib/powerlimit"
)

func (s *serviceContext) registerHandlers(server *control.Server) {
	server.Handle(control.ActionSetLimit, s.handleSetLimit)
	server.Handle(control.ActionGetLimit, s.handleGetLimit)
	server.Handle(control.ActionGetLimitRange, s.handleGetLimitRange)
	server.Handle(control.ActionIsActive, s.handleIsActive)
	server.Handle(control.ActionListLeases, s.handleListLeases)
	server.HandleLease(control.ActionEnterLease, s.handleEnterLease)

	server.Handle(control.ActionWriteState, s.handleWriteState)
	server.Handle(control.ActionReload, s.handleReload)

	server.Handle(control.ActionGetChargeLimit, s.handleGetChargeLimit)
	server.Handle(control.ActionSetChargeLimit, s.handleSetChargeLimit)
	server.Handle(control.ActionListGovernors, s.handleListGovernors)
	server.Handle(control.ActionGetGovernor, s.handleGetGovernor)
	server.Handle(control.ActionSetGovernor, s.handleSetGovernor)
	server.Handle(control.ActionGetBoost, s.handleGetBoost)
	server.Handle(control.ActionSetBoost, s.handleSetBoost)
	server.Handle(control.ActionListProfiles, s.handleListProfiles)
	server.Handle(control.ActionGetProfile, s.handleGetProfile)
	server.Handle(control.ActionSetProfile, s.handleSetProfile)
}

func (s *serviceContext) requireArbiter() (*powerlimit.Client, error) {
	if s.arbiter == nil {
		return nil, powerlimit.ErrNotConfigured
	}
	return s.arbiter, nil
}

func (s *serviceContext) handleSetLimit(ctx context.Context, raw []byte) (any, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	var request control.SetLimitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if err := arbiter.SetLimit(ctx, request.Watts); err != nil {
		return nil, err
	}
	watts := request.Watts
	s.recordState(func(state *persistedState) { state.PowerLimitWatts = watts })
	return nil, nil
}

func (s *serviceContext) handleGetLimit(ctx context.Context, raw []byte) (any, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	watts, err := arbiter.Limit(ctx)
	if err != nil {
		return nil, err
	}
	return control.LimitResponse{Watts: watts}, nil
}

func (s *serviceContext) handleGetLimitRange(ctx context.Context, raw []byte) (any, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	limitRange, err := arbiter.LimitRange(ctx)
	if err != nil {
		return nil, err
	}
	return control.LimitRangeResponse{Min: limitRange.Min, Max: limitRange.Max}, nil
}

func (s *serviceContext) handleIsActive(ctx context.Context, raw []byte) (any, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	active, err := arbiter.Active(ctx)
	if err != nil {
		return nil, err
	}
	return control.ActiveResponse{Active: active}, nil
}

func (s *serviceContext) handleListLeases(ctx context.Context, raw []byte) (any, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	leases, err := arbiter.Leases(ctx)
	if err != nil {
		return nil, err
	}
	return control.LeasesResponse{Leases: leases}, nil
}

func (s *serviceContext) handleEnterLease(ctx context.Context, key string) (io.Closer, error) {
	arbiter, err := s.requireArbiter()
	if err != nil {
		return nil, err
	}
	token, err := arbiter.EnterLease(ctx, key)
	if err != nil {
		return nil, err
	}
	if token == nil {
		// Leasing disabled by configuration. A typed-nil file inside
		// the interface would read as a grant.
		return nil, nil
	}
	return token, nil
}

func (s *serviceContext) handleWriteState(ctx context.Context, raw []byte) (any, error) {
	select {
	case s.opts.commands <- daemon.WriteState[command]():
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *serviceContext) handleReload(ctx context.Context, raw []byte) (any, error) {
	select {
	case s.opts.commands <- daemon.ReadConfig[command]():
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *serviceContext) handleGetChargeLimit(ctx context.Context, raw []byte) (any, error) {
	percent, err := s.snapshot().battery.ChargeLimit()
	if err != nil {
		return nil, err
	}
	return control.ChargeLimitResponse{Percent: percent}, nil
}

func (s *serviceContext) handleSetChargeLimit(ctx context.Context, raw []byte) (any, error) {
	var request control.ChargeLimitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	done, err := s.snapshot().battery.SetChargeLimit(request.Percent)
	if err != nil {
		return nil, err
	}
	select {
	case written := <-done:
		// A superseded write means a newer value took this one's
		// place, which is success from this caller's perspective:
		// the hardware will hold a value at least as fresh.
		if written.Err != nil {
			return nil, written.Err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	percent := request.Percent
	s.recordState(func(state *persistedState) { state.ChargeLimit = percent })
	return nil, nil
}

func (s *serviceContext) handleListGovernors(ctx context.Context, raw []byte) (any, error) {
	governors, err := s.cpu.AvailableGovernors()
	if err != nil {
		return nil, err
	}
	return control.GovernorsResponse{Governors: governors}, nil
}

func (s *serviceContext) handleGetGovernor(ctx context.Context, raw []byte) (any, error) {
	governor, err := s.cpu.Governor()
	if err != nil {
		return nil, err
	}
	return control.GovernorResponse{Governor: governor}, nil
}

func (s *serviceContext) handleSetGovernor(ctx context.Context, raw []byte) (any, error) {
	var request control.GovernorRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.cpu.SetGovernor(request.Governor)
}

func (s *serviceContext) handleGetBoost(ctx context.Context, raw []byte) (any, error) {
	enabled, err := s.cpu.BoostEnabled()
	if err != nil {
		return nil, err
	}
	return control.BoostResponse{Enabled: enabled}, nil
}

func (s *serviceContext) handleSetBoost(ctx context.Context, raw []byte) (any, error) {
	var request control.BoostRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.cpu.SetBoost(request.Enabled)
}

func (s *serviceContext) handleListProfiles(ctx context.Context, raw []byte) (any, error) {
	profiles, err := s.snapshot().profile.Choices()
	if err != nil {
		return nil, err
	}
	return control.ProfilesResponse{Profiles: profiles}, nil
}

func (s *serviceContext) handleGetProfile(ctx context.Context, raw []byte) (any, error) {
	profile := s.snapshot().profile
	current, err := profile.Current()
	if err != nil {
		return nil, err
	}
	return control.ProfileResponse{
		Profile:          current,
		SuggestedDefault: profile.SuggestedDefault(),
	}, nil
}

func (s *serviceContext) handleSetProfile(ctx context.Context, raw []byte) (any, error) {
	var request control.ProfileRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.snapshot().profile.Set(request.Profile)
}
