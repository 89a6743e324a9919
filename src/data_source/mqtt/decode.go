package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/models"
)

const (
	maxBoomAngle = 90.0
	maxStability = 100.0
)

// Payload keys, as published by the crane sensor gateway.
var sensorFields = []string{
	"weight",
	"windSpeed",
	"stability",
	"boomAngle",
	"swingSpeed",
	"energyConsumption",
}

// -----------------------------------------------------------------------------

// Decode parses one upstream JSON payload. Every sensor field must be present
// as a JSON number; textual, null and missing values are rejected rather than
// defaulted. Negative values are rejected. boomAngle and stability are clamped
// to their physical maximum. Unknown keys are ignored.
func Decode(payload []byte, observedAt time.Time) (models.MRawReading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return models.MRawReading{}, helpers.NewDecodeError("payload is not a JSON object", err)
	}
	if doc == nil {
		return models.MRawReading{}, helpers.NewDecodeError("payload is null", nil)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.MRawReading{}, helpers.NewDecodeError("trailing data after JSON object", err)
	}

	values := make(map[string]float64, len(sensorFields))
	for _, key := range sensorFields {
		v, err := numberField(doc, key)
		if err != nil {
			return models.MRawReading{}, err
		}
		values[key] = v
	}

	return models.MRawReading{
		Weight:            values["weight"],
		WindSpeed:         values["windSpeed"],
		Stability:         math.Min(values["stability"], maxStability),
		BoomAngle:         math.Min(values["boomAngle"], maxBoomAngle),
		SwingSpeed:        values["swingSpeed"],
		EnergyConsumption: values["energyConsumption"],
		ObservedAt:        observedAt,
	}, nil
}

// -----------------------------------------------------------------------------

func numberField(doc map[string]interface{}, key string) (float64, error) {
	raw, ok := doc[key]
	if !ok {
		return 0, helpers.NewDecodeError(fmt.Sprintf("missing field %q", key), nil)
	}

	num, ok := raw.(json.Number)
	if !ok {
		return 0, helpers.NewDecodeError(fmt.Sprintf("field %q is %T, want number", key, raw), nil)
	}

	v, err := strconv.ParseFloat(num.String(), 64)
	if err != nil {
		return 0, helpers.NewDecodeError(fmt.Sprintf("field %q out of range", key), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, helpers.NewDecodeError(fmt.Sprintf("field %q is not finite", key), nil)
	}
	if v < 0 {
		return 0, helpers.NewDecodeError(fmt.Sprintf("field %q is negative (%v)", key, v), nil)
	}
	return v, nil
}
