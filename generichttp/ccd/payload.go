package ccd

import (
	"path/filepath"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/generichttp"
	"github.com/nasa-jpl/ccdnoise/noise"
	"github.com/nasa-jpl/ccdnoise/sequence"
)

// Values which can be non-finite are encoded as null, with "NaN", "+Inf" or
// "-Inf" in the sibling field suffixed _str.

// SummaryJSON is the median and mean of per pair values
type SummaryJSON struct {
	Median    generichttp.Float `json:"median"`
	MedianStr string            `json:"median_str,omitempty"`
	Mean      generichttp.Float `json:"mean"`
	MeanStr   string            `json:"mean_str,omitempty"`
}

func summary(s sequence.Summary) SummaryJSON {
	return SummaryJSON{
		Median:    generichttp.Float(s.Median),
		MedianStr: generichttp.NonFinite(s.Median),
		Mean:      generichttp.Float(s.Mean),
		MeanStr:   generichttp.NonFinite(s.Mean)}
}

// RONPairJSON is the readout noise of one bias pair
type RONPairJSON struct {
	First    string            `json:"first"`
	Second   string            `json:"second"`
	RONADU   generichttp.Float `json:"ron_adu"`
	RONStr   string            `json:"ron_adu_str,omitempty"`
	Sigma    generichttp.Float `json:"sigma"`
	Median   generichttp.Float `json:"median"`
	Mean     generichttp.Float `json:"mean"`
	Window   string            `json:"win"`
	Artifact string            `json:"artifact,omitempty"`
}

func ronPair(p sequence.RONPair) RONPairJSON {
	return RONPairJSON{
		First:    p.First,
		Second:   p.Second,
		RONADU:   generichttp.Float(p.ADU),
		RONStr:   generichttp.NonFinite(p.ADU),
		Sigma:    generichttp.Float(p.Sigma),
		Median:   generichttp.Float(p.Median),
		Mean:     generichttp.Float(p.Mean),
		Window:   p.Window.String(),
		Artifact: artifact(p.Artifact)}
}

func artifact(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// RONResponse is the reply of the /ron route
type RONResponse struct {
	Pairs []RONPairJSON `json:"pairs"`
	RON   SummaryJSON   `json:"ron_adu"`
}

func ronReport(rep sequence.RONReport) RONResponse {
	out := RONResponse{Pairs: make([]RONPairJSON, len(rep.Pairs)), RON: summary(rep.RON)}
	for i, p := range rep.Pairs {
		out.Pairs[i] = ronPair(p)
	}
	return out
}

// GainPairJSON is the gain of one light pair
type GainPairJSON struct {
	First           string            `json:"first"`
	Second          string            `json:"second"`
	Gain            generichttp.Float `json:"gain"`
	GainStr         string            `json:"gain_str,omitempty"`
	RONe            generichttp.Float `json:"ron_e"`
	RONeStr         string            `json:"ron_e_str,omitempty"`
	RONADU          generichttp.Float `json:"ron_adu"`
	Count1          generichttp.Float `json:"count1"`
	Count2          generichttp.Float `json:"count2"`
	Count           generichttp.Float `json:"count"`
	Sigma           generichttp.Float `json:"sigma"`
	Median          generichttp.Float `json:"median"`
	ShotVariance    generichttp.Float `json:"shot_variance"`
	ShotVarianceStr string            `json:"shot_variance_str,omitempty"`
	Window          string            `json:"win"`
	Artifact        string            `json:"artifact,omitempty"`
}

func gainPair(p sequence.GainPair) GainPairJSON {
	return GainPairJSON{
		First:           p.First,
		Second:          p.Second,
		Gain:            generichttp.Float(p.Gain),
		GainStr:         generichttp.NonFinite(p.Gain),
		RONe:            generichttp.Float(p.RONe),
		RONeStr:         generichttp.NonFinite(p.RONe),
		RONADU:          generichttp.Float(p.RONADU),
		Count1:          generichttp.Float(p.Count1),
		Count2:          generichttp.Float(p.Count2),
		Count:           generichttp.Float(p.Count),
		Sigma:           generichttp.Float(p.Sigma),
		Median:          generichttp.Float(p.Median),
		ShotVariance:    generichttp.Float(p.ShotVariance),
		ShotVarianceStr: generichttp.NonFinite(p.ShotVariance),
		Window:          p.Window.String(),
		Artifact:        artifact(p.Artifact)}
}

// GainResponse is the reply of the /gain route
type GainResponse struct {
	Pairs []GainPairJSON `json:"pairs"`
	Gain  SummaryJSON    `json:"gain"`
	RONe  SummaryJSON    `json:"ron_e"`
}

func gainReport(rep sequence.GainReport) GainResponse {
	out := GainResponse{
		Pairs: make([]GainPairJSON, len(rep.Pairs)),
		Gain:  summary(rep.Gain),
		RONe:  summary(rep.RONe)}
	for i, p := range rep.Pairs {
		out.Pairs[i] = gainPair(p)
	}
	return out
}

// FitJSON is a photon transfer fit
type FitJSON struct {
	Gain      generichttp.Float `json:"gain"`
	GainStr   string            `json:"gain_str,omitempty"`
	Slope     generichttp.Float `json:"slope"`
	Intercept generichttp.Float `json:"intercept"`
	RSquared  generichttp.Float `json:"r_squared"`
	Used      int               `json:"used"`
	Dropped   int               `json:"dropped"`
}

func fit(f noise.PTCResult) FitJSON {
	return FitJSON{
		Gain:      generichttp.Float(f.Gain),
		GainStr:   generichttp.NonFinite(f.Gain),
		Slope:     generichttp.Float(f.Slope),
		Intercept: generichttp.Float(f.Intercept),
		RSquared:  generichttp.Float(f.RSquared),
		Used:      f.Used,
		Dropped:   f.Dropped}
}

// PTCResponse is the reply of the /ptc route
type PTCResponse struct {
	GainResponse
	Fit FitJSON `json:"fit"`
}

// CalcResponse is the reply of the /calc route
type CalcResponse struct {
	RON  RONPairJSON  `json:"ron"`
	Gain GainPairJSON `json:"gain"`
}

// SuperbiasResponse is the reply of the /superbias route
type SuperbiasResponse struct {
	Artifact  string `json:"artifact"`
	Frames    int    `json:"frames"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Undefined int    `json:"undefined"`
}

// CamerasResponse is the reply of the /cameras route
type CamerasResponse struct {
	Default string          `json:"default"`
	Cameras camera.Profiles `json:"cameras"`
}
