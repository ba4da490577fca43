package risk

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUreaBands(t *testing.T) {
	cases := []struct {
		value float64
		want  Level
	}{
		{5, Green},
		{19.9, Green},
		{20, Green},
		{32.5, Green},
		{40, Green},
		{41, Blue},
		{80, Blue},
		{81, Yellow},
		{100, Yellow},
		{101, Orange},
		{150, Orange},
		{150.1, Red},
		{160, Red},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ClassifyUrea(tc.value), "urea %v", tc.value)
	}
}

func TestClassifyFluidPriority(t *testing.T) {
	cases := []struct {
		ecw, pa float64
		want    Level
	}{
		{0.35, 4.4, Red},
		{0.50, 7.0, Red},
		{0.49, 6.0, Red},
		{0.38, 7.0, Green},
		{0.38, 5.8, Blue},
		{0.46, 6.0, Orange},
		{0.48, 6.0, Orange},
		{0.43, 6.0, Yellow},
		{0.45, 6.0, Yellow},
		{0.39, 6.0, Blue},
		{0.42, 6.0, Blue},
		{0.425, 6.0, Blue},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ClassifyFluid(tc.ecw, tc.pa), "ecw %v pa %v", tc.ecw, tc.pa)
	}
}

func TestClassifyHeartRateExtremeLowIsRed(t *testing.T) {
	cases := []struct {
		value float64
		want  Level
	}{
		{25, Red},
		{29.9, Red},
		{30, Orange},
		{39, Orange},
		{40, Green},
		{41, Blue},
		{59, Blue},
		{60, Green},
		{72, Green},
		{100, Green},
		{101, Blue},
		{120, Blue},
		{121, Yellow},
		{140, Yellow},
		{141, Orange},
		{180, Orange},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ClassifyHeartRate(tc.value), "hr %v", tc.value)
	}
}

func TestClassifySpO2Bands(t *testing.T) {
	cases := []struct {
		value float64
		want  Level
	}{
		{98, Green},
		{95.5, Green},
		{95, Green},
		{94, Blue},
		{92, Blue},
		{91, Yellow},
		{90, Yellow},
		{89.9, Orange},
		{85, Orange},
		{84.9, Red},
		{70, Red},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ClassifySpO2(tc.value), "spo2 %v", tc.value)
	}
}

func TestClassifiersAreTotalOverDocumentedDomains(t *testing.T) {
	for v := 0.0; v <= 250; v += 0.5 {
		assert.True(t, ClassifyUrea(v).Valid())
		assert.True(t, ClassifyHeartRate(v).Valid())
	}
	for v := 50.0; v <= 100; v += 0.25 {
		assert.True(t, ClassifySpO2(v).Valid())
	}
	for ecw := 0.30; ecw <= 0.60; ecw += 0.005 {
		for pa := 3.0; pa <= 10; pa += 0.1 {
			assert.True(t, ClassifyFluid(ecw, pa).Valid())
		}
	}
}

func TestFourLevelProfileMergesBlue(t *testing.T) {
	assert.Equal(t, Blue, FiveLevel.Classify(SignalFluid, 0.38, 5.8))
	assert.Equal(t, Green, FourLevel.Classify(SignalFluid, 0.38, 5.8))
	assert.Equal(t, Green, FourLevel.Classify(SignalUrea, 60, 0))
	assert.Equal(t, Red, FourLevel.Classify(SignalUrea, 160, 0))

	for _, s := range Signals() {
		for v := 0.0; v <= 200; v += 1 {
			assert.NotEqual(t, Blue, FourLevel.Classify(s, v, 6.0))
		}
	}
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("five_level")
	require.NoError(t, err)
	assert.Equal(t, ProfileFiveLevel, p.Name())

	p, err = ProfileByName("")
	require.NoError(t, err)
	assert.Equal(t, ProfileFourLevel, p.Name())

	_, err = ProfileByName("seven")
	assert.Error(t, err)
}

func TestReadRoundsAndExplains(t *testing.T) {
	at := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	r, err := FiveLevel.Read(SignalUrea, 32.54, 0, at)
	require.NoError(t, err)
	assert.Equal(t, 32.5, r.Value)
	assert.Equal(t, "mg/dL", r.Unit)
	assert.Equal(t, Green, r.Risk)
	assert.Equal(t, "Normal", r.Badge)
	assert.Equal(t, SensorBiochemPatch, r.Sensor)
	assert.Contains(t, r.Explanation, "32.5")
	assert.Contains(t, r.Explanation, "GREEN")
	assert.Nil(t, r.PhaseAngle)
	assert.Equal(t, at, r.Timestamp)

	r, err = FiveLevel.Read(SignalFluid, 0.4449, 6.04, at)
	require.NoError(t, err)
	assert.Equal(t, 0.44, r.Value)
	require.NotNil(t, r.PhaseAngle)
	assert.Equal(t, 6.0, *r.PhaseAngle)
	assert.Equal(t, Yellow, r.Risk)

	r, err = FiveLevel.Read(SignalSpO2, 94.6, 0, at)
	require.NoError(t, err)
	assert.Equal(t, 95.0, r.Value)
	assert.Equal(t, "%", r.Unit)
}

func TestReadRejectsNaN(t *testing.T) {
	_, err := FourLevel.Read(SignalHeartRate, math.NaN(), 0, time.Now())
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))

	_, err = FourLevel.Read(SignalFluid, 0.4, math.Inf(1), time.Now())
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))
}

func TestLevelTextEncoding(t *testing.T) {
	b, err := json.Marshal(map[string]Level{"risk": Orange})
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"ORANGE"}`, string(b))

	var decoded map[string]Level
	require.NoError(t, json.Unmarshal([]byte(`{"risk":"yellow"}`), &decoded))
	assert.Equal(t, Yellow, decoded["risk"])

	assert.Error(t, json.Unmarshal([]byte(`{"risk":"PURPLE"}`), &decoded))
	assert.Equal(t, Red, Max(Green, Red, Yellow))
	assert.Equal(t, Green, FromSeverity(9))
}
