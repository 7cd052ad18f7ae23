/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var chargingConfigJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// rawChargingConfig mirrors the on-disk shape of charging_configurations.config: a discriminator
// plus whichever operator-specific object is present.
type rawChargingConfig struct {
	Kind ChargingConfigKind `json:"kind"`
	GP   *GPConfig          `json:"gp,omitempty"`
	Robi *RobiConfig        `json:"robi,omitempty"`
}

// ParseChargingConfig decodes the tagged-variant charging_configurations.config column. An
// unrecognized or missing "kind" is reported as an error so callers can fall back to
// ChargingConfigUnknown, which the worker treats as a documented skip condition.
func ParseChargingConfig(raw []byte) (ChargingConfig, error) {
	var parsed rawChargingConfig
	if err := chargingConfigJSON.Unmarshal(raw, &parsed); err != nil {
		return ChargingConfig{}, fmt.Errorf("failed to parse charging config: %w", err)
	}

	switch parsed.Kind {
	case ChargingConfigGP:
		if parsed.GP == nil {
			return ChargingConfig{}, fmt.Errorf("charging config kind GP missing gp payload")
		}
		return ChargingConfig{Kind: ChargingConfigGP, GP: parsed.GP}, nil
	case ChargingConfigRobi:
		if parsed.Robi == nil {
			return ChargingConfig{}, fmt.Errorf("charging config kind ROBI missing robi payload")
		}
		return ChargingConfig{Kind: ChargingConfigRobi, Robi: parsed.Robi}, nil
	default:
		return ChargingConfig{}, fmt.Errorf("unrecognized charging config kind %q", parsed.Kind)
	}
}
