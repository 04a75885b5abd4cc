package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// RawLayout is the direct JSON decoding of a layout file (§6's "Layout
// JSON" table). Unknown fields are rejected by the decoder that produces
// this struct (see ParseFile/ParseString).
type RawLayout struct {
	Resolution           string                 `json:"resolution"`
	FrameRate             json.RawMessage        `json:"frame_rate"`
	Trim                  *bool                  `json:"trim"`
	AudioSources          []string               `json:"audio_sources"`
	AudioSourcesExcluded  []string               `json:"audio_sources_excluded"`
	VideoLayout           map[string]rawRegionJSON `json:"video_layout"`
	AudioCodec            string                 `json:"audio_codec"`
	VideoCodec            string                 `json:"video_codec"`
	AudioBitrate          int                    `json:"audio_bitrate"`
	VideoBitrate          int                    `json:"video_bitrate"`
}

type rawRegionJSON struct {
	VideoSources         []string `json:"video_sources"`
	VideoSourcesExcluded []string `json:"video_sources_excluded"`
	CellsExcluded        []int    `json:"cells_excluded"`
	MaxRows              int      `json:"max_rows"`
	MaxColumns           int      `json:"max_columns"`
	Reuse                string   `json:"reuse"`
	Width                int      `json:"width"`
	Height               int      `json:"height"`
	CellWidth            int      `json:"cell_width"`
	CellHeight           int      `json:"cell_height"`
	XPos                 int      `json:"x_pos"`
	YPos                 int      `json:"y_pos"`
	ZPos                 int      `json:"z_pos"`
}

// ParseFile decodes a layout JSON file, rejecting unknown fields.
func ParseFile(path string) (RawLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawLayout{}, domain.WrapConfiguration(err)
	}
	defer f.Close()
	return decodeRawLayout(f)
}

// ParseString decodes a layout JSON document from an in-memory string (used
// for the built-in default layout template).
func ParseString(text string) (RawLayout, error) {
	return decodeRawLayout(strings.NewReader(text))
}

func decodeRawLayout(r interface{ Read([]byte) (int, error) }) (RawLayout, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var raw RawLayout
	if err := dec.Decode(&raw); err != nil {
		return RawLayout{}, domain.WrapConfiguration(fmt.Errorf("parse layout json: %w", err))
	}
	return raw, nil
}

func parseResolution(s string) (domain.Resolution, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return domain.Resolution{}, fmt.Errorf("invalid resolution %q, want WxH", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	return domain.NewResolution(w, h)
}

func parseFrameRate(raw json.RawMessage) (domain.FrameRate, error) {
	if len(raw) == 0 {
		return domain.FrameRate{Num: 25, Den: 1}, nil
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return domain.FrameRate{Num: asInt, Den: 1}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		parts := strings.SplitN(asString, "/", 2)
		if len(parts) == 2 {
			num, errN := strconv.Atoi(parts[0])
			den, errD := strconv.Atoi(parts[1])
			if errN == nil && errD == nil && den > 0 {
				return domain.FrameRate{Num: num, Den: den}, nil
			}
		}
	}
	return domain.FrameRate{}, fmt.Errorf("invalid frame_rate %s", raw)
}

func parseReuse(s string) (domain.ReuseKind, error) {
	switch s {
	case "", "none":
		return domain.ReuseNone, nil
	case "show_oldest":
		return domain.ReuseShowOldest, nil
	case "show_newest":
		return domain.ReuseShowNewest, nil
	default:
		return 0, fmt.Errorf("unknown reuse policy %q", s)
	}
}

func parseCodec(s string, fallback domain.CodecName) (domain.CodecName, error) {
	switch s {
	case "":
		return fallback, nil
	case "opus":
		return domain.CodecOpus, nil
	case "aac":
		return domain.CodecAAC, nil
	case "vp8":
		return domain.CodecVP8, nil
	case "vp9":
		return domain.CodecVP9, nil
	case "h264":
		return domain.CodecH264, nil
	case "h265":
		return domain.CodecH265, nil
	case "av1":
		return domain.CodecAV1, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", s)
	}
}

// Build resolves a RawLayout's globs and region definitions against
// basePath into a fully assigned domain.Layout, probing each source file
// with probe.
func (raw RawLayout) Build(basePath string, probe SourceProbe) (*domain.Layout, error) {
	sources := make(map[domain.SourceID]*domain.AggregatedSourceInfo)

	audioInfos, audioPaths, err := ResolveSourceAndMediaPathPairs(basePath, raw.AudioSources, raw.AudioSourcesExcluded, probe)
	if err != nil {
		return nil, err
	}
	audioIDs := make(map[domain.SourceID]struct{}, len(audioInfos))
	for i, info := range audioInfos {
		agg, ok := sources[info.ID]
		if !ok {
			a := domain.NewAggregatedSourceInfo()
			agg = &a
			sources[info.ID] = agg
		}
		agg.Update(info, audioPaths[i])
		audioIDs[info.ID] = struct{}{}
	}

	var resolution *domain.Resolution
	if raw.Resolution != "" {
		r, err := parseResolution(raw.Resolution)
		if err != nil {
			return nil, domain.WrapConfiguration(err)
		}
		resolution = &r
	} else if len(raw.VideoLayout) != 1 {
		return nil, domain.WrapConfiguration(fmt.Errorf("resolution must be specified unless exactly one video_layout region is given"))
	}

	names := make([]string, 0, len(raw.VideoLayout))
	for name := range raw.VideoLayout {
		names = append(names, name)
	}
	sort.Strings(names)

	regions := make([]domain.Region, 0, len(names))
	for _, name := range names {
		rr := raw.VideoLayout[name]
		reuse, err := parseReuse(rr.Reuse)
		if err != nil {
			return nil, domain.WrapConfiguration(fmt.Errorf("region %q: %w", name, err))
		}
		region0 := RawRegion{
			VideoSources:          rr.VideoSources,
			VideoSourcesExcluded:  rr.VideoSourcesExcluded,
			CellsExcluded:         rr.CellsExcluded,
			MaxRows:               rr.MaxRows,
			MaxColumns:            rr.MaxColumns,
			Reuse:                 reuse,
			Width:                 rr.Width,
			Height:                rr.Height,
			CellWidth:             rr.CellWidth,
			CellHeight:            rr.CellHeight,
			XPos:                  rr.XPos,
			YPos:                  rr.YPos,
			ZPos:                  rr.ZPos,
		}
		region, err := region0.Resolve(basePath, sources, probe, resolution)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", name, err)
		}
		regions = append(regions, region)
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].ZPos < regions[j].ZPos })

	if resolution == nil {
		if len(regions) != 1 {
			return nil, domain.WrapConfiguration(fmt.Errorf("internal error: resolution still unset"))
		}
		required, err := domain.NewResolution(regions[0].Position.X+regions[0].Width, regions[0].Position.Y+regions[0].Height)
		if err != nil {
			return nil, domain.WrapConfiguration(err)
		}
		resolution = &required
	}

	frameRate, err := parseFrameRate(raw.FrameRate)
	if err != nil {
		return nil, domain.WrapConfiguration(err)
	}
	audioCodec, err := parseCodec(raw.AudioCodec, domain.CodecOpus)
	if err != nil {
		return nil, domain.WrapConfiguration(err)
	}
	videoCodec, err := parseCodec(raw.VideoCodec, domain.CodecH264)
	if err != nil {
		return nil, domain.WrapConfiguration(err)
	}

	for _, agg := range sources {
		agg.MergeOverlappingSegments()
	}

	trimFirstGapOnly := raw.Trim != nil && !*raw.Trim
	trimSpans := decideTrimSpans(sources, trimFirstGapOnly)

	return &domain.Layout{
		BasePath:       basePath,
		VideoRegions:   regions,
		TrimSpans:      trimSpans,
		Resolution:     *resolution,
		AudioSourceIDs: audioIDs,
		Sources:        sources,
		AudioCodec:     audioCodec,
		VideoCodec:     videoCodec,
		AudioBitrate:   raw.AudioBitrate,
		VideoBitrate:   raw.VideoBitrate,
		FrameRate:      frameRate,
	}, nil
}

// DefaultLayoutJSON is the built-in single-region template used when the
// user supplies no layout file: one region spanning the whole canvas,
// reusing cells for the oldest-seen speakers, sized to a 4:3-ish grid.
const DefaultLayoutJSON = `{
  "resolution": "1920x1080",
  "frame_rate": 25,
  "video_layout": {
    "main": {
      "video_sources": ["*"],
      "reuse": "show_oldest"
    }
  }
}`
