// Package temporal resolves which input field carries a timestamp and parses
// heterogeneous date representations into a canonical UTC instant.
package temporal

import (
	"fmt"
	"strconv"
	"time"

	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/models"
)

// ResolveField returns the name of the single date-encoded input field, or ""
// if the configuration has none. More than one date encoder is rejected: the
// ingestion pipeline supports at most one temporal field per model, and
// picking one silently would make ordering checks depend on map iteration.
func ResolveField(params models.ModelParams) (string, error) {
	encoders, err := params.Encoders()
	if err != nil {
		return "", err
	}

	field := ""
	for name, spec := range encoders {
		if spec == nil {
			continue
		}
		if spec["type"] != constants.DateEncoderType {
			continue
		}
		fieldname, ok := spec["fieldname"].(string)
		if !ok || fieldname == "" {
			return "", fmt.Errorf("%w: date encoder %q has no fieldname", errors.ErrInvalidEncoders, name)
		}
		if field != "" && field != fieldname {
			return "", fmt.Errorf("%w: %q and %q", errors.ErrMultipleDateFields, field, fieldname)
		}
		field = fieldname
	}
	return field, nil
}

// ParseTimestamp converts a raw temporal value into a UTC instant. Numbers and
// purely numeric strings are seconds since epoch (fractional allowed); other
// strings are tried against the fixed pattern list in priority order.
func ParseTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, errors.ErrMissingTemporal
	case float64:
		return epochSeconds(v), nil
	case int:
		return epochSeconds(float64(v)), nil
	case int64:
		return epochSeconds(float64(v)), nil
	case time.Time:
		return v.UTC(), nil
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return epochSeconds(secs), nil
		}
		for _, layout := range constants.DatePatterns {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", errors.ErrUnparseableDate, v)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", errors.ErrUnparseableDate, raw)
	}
}

func epochSeconds(secs float64) time.Time {
	sec := int64(secs)
	nsec := int64((secs - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
