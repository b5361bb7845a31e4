// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "github.com/wattson-project/wattson/lib/codec"

// Action names of the control protocol.
const (
	ActionSetLimit      = "set-limit"
	ActionGetLimit      = "get-limit"
	ActionGetLimitRange = "get-limit-range"
	ActionIsActive      = "is-active"
	ActionListLeases    = "list-leases"
	ActionEnterLease    = "enter-lease"
	ActionWriteState    = "write-state"
	ActionReload        = "reload"

	ActionGetChargeLimit = "get-charge-limit"
	ActionSetChargeLimit = "set-charge-limit"
	ActionListGovernors  = "list-governors"
	ActionGetGovernor    = "get-governor"
	ActionSetGovernor    = "set-governor"
	ActionGetBoost       = "get-boost"
	ActionSetBoost       = "set-boost"
	ActionListProfiles   = "list-profiles"
	ActionGetProfile     = "get-profile"
	ActionSetProfile     = "set-profile"
)

// Response is the wire envelope for every control response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SetLimitRequest carries the requested limit in watts.
type SetLimitRequest struct {
	Watts uint32 `cbor:"watts"`
}

// LimitResponse carries a limit reading in watts.
type LimitResponse struct {
	Watts uint32 `cbor:"watts"`
}

// LimitRangeResponse carries the valid limit range in watts.
type LimitRangeResponse struct {
	Min uint32 `cbor:"min"`
	Max uint32 `cbor:"max"`
}

// ActiveResponse reports whether the limit method is usable.
type ActiveResponse struct {
	Active bool `cbor:"active"`
}

// LeasesResponse carries the lease table snapshot.
type LeasesResponse struct {
	Leases map[string]uint32 `cbor:"leases"`
}

// EnterLeaseRequest names the lease to take. Granted reports whether
// a lease was actually taken; it is false when leasing is disabled by
// configuration, in which case the connection closes after the
// response.
type EnterLeaseRequest struct {
	Key string `cbor:"key"`
}

// EnterLeaseResponse acknowledges a lease request.
type EnterLeaseResponse struct {
	Granted bool `cbor:"granted"`
}

// ChargeLimitRequest carries a battery charge ceiling in percent.
type ChargeLimitRequest struct {
	Percent int32 `cbor:"percent"`
}

// ChargeLimitResponse carries the battery charge ceiling in percent.
type ChargeLimitResponse struct {
	Percent int32 `cbor:"percent"`
}

// GovernorRequest names a CPU scaling governor to select.
type GovernorRequest struct {
	Governor string `cbor:"governor"`
}

// GovernorResponse carries the selected CPU scaling governor.
type GovernorResponse struct {
	Governor string `cbor:"governor"`
}

// GovernorsResponse lists the available CPU scaling governors.
type GovernorsResponse struct {
	Governors []string `cbor:"governors"`
}

// BoostRequest carries the desired CPU boost state.
type BoostRequest struct {
	Enabled bool `cbor:"enabled"`
}

// BoostResponse carries the current CPU boost state.
type BoostResponse struct {
	Enabled bool `cbor:"enabled"`
}

// ProfileRequest names a platform profile to select.
type ProfileRequest struct {
	Profile string `cbor:"profile"`
}

// ProfileResponse carries the selected platform profile.
type ProfileResponse struct {
	Profile string `cbor:"profile"`

	// SuggestedDefault is the device configuration's recommended
	// profile, when one is configured.
	SuggestedDefault string `cbor:"suggested_default,omitempty"`
}

// ProfilesResponse lists the platform profiles the firmware accepts.
type ProfilesResponse struct {
	Profiles []string `cbor:"profiles"`
}
