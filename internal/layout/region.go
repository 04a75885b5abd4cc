package layout

import (
	"fmt"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// BorderPixels is the fixed border thickness, in pixels, drawn between grid
// cells and (when it fits the canvas) around a region's outer edge.
const BorderPixels = 2

// RawRegion is one named entry of a layout JSON's "video_layout" object,
// before source resolution and grid sizing.
type RawRegion struct {
	VideoSources         []string
	VideoSourcesExcluded []string
	CellsExcluded        []int
	MaxRows              int
	MaxColumns           int
	Reuse                domain.ReuseKind
	Width, Height        int
	CellWidth, CellHeight int
	XPos, YPos           int
	ZPos                 int
}

// Resolve turns a RawRegion into a fully assigned domain.Region. sources is
// mutated: every resolved source found by this region's globs is folded
// into it. resolution is the layout's already-decided canvas size, or nil
// when the canvas size itself must be derived from this region (only valid
// when the layout has exactly one region).
func (r RawRegion) Resolve(basePath string, sources map[domain.SourceID]*domain.AggregatedSourceInfo, probe SourceProbe, resolution *domain.Resolution) (domain.Region, error) {
	if r.Width != 0 && r.CellWidth != 0 {
		return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("cannot specify both width and cell_width for the same region"))
	}
	if r.Height != 0 && r.CellHeight != 0 {
		return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("cannot specify both height and cell_height for the same region"))
	}

	infos, paths, err := ResolveSourceAndMediaPathPairs(basePath, r.VideoSources, r.VideoSourcesExcluded, probe)
	if err != nil {
		return domain.Region{}, err
	}
	sourceIDs := make(map[domain.SourceID]struct{}, len(infos))
	for i, info := range infos {
		agg, ok := sources[info.ID]
		if !ok {
			a := domain.NewAggregatedSourceInfo()
			agg = &a
			sources[info.ID] = agg
		}
		agg.Update(info, paths[i])
		sourceIDs[info.ID] = struct{}{}
	}

	gridSources := make(map[domain.SourceID]*domain.AggregatedSourceInfo, len(sourceIDs))
	for id := range sourceIDs {
		gridSources[id] = sources[id]
	}

	maxSources := decideRequiredCells(gridSources, r.Reuse, r.CellsExcluded)
	rows, columns := decideGridDimensions(r.MaxRows, r.MaxColumns, maxSources)
	assigned := assignSources(r.Reuse, gridSources, rows*columns, r.CellsExcluded)

	width, height := r.Width, r.Height
	if r.CellWidth != 0 {
		horizontalInner := BorderPixels * (columns - 1)
		gridWidth := r.CellWidth*columns + horizontalInner
		if resolution != nil && gridWidth+BorderPixels*2 <= resolution.Width {
			width = gridWidth + BorderPixels*2
		} else {
			width = gridWidth
		}
	}
	if r.CellHeight != 0 {
		verticalInner := BorderPixels * (rows - 1)
		gridHeight := r.CellHeight*rows + verticalInner
		if resolution != nil && gridHeight+BorderPixels*2 <= resolution.Height {
			height = gridHeight + BorderPixels*2
		} else {
			height = gridHeight
		}
	}

	var finalResolution domain.Resolution
	if resolution != nil {
		finalResolution = *resolution
	} else {
		if width <= 0 || height <= 0 {
			return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("region width/height must be specified when resolution is not set"))
		}
		res, err := domain.NewResolution(r.XPos+width, r.YPos+height)
		if err != nil {
			return domain.Region{}, domain.WrapConfiguration(err)
		}
		finalResolution = res
	}

	if height != 0 {
		if height < domain.ResolutionMin || height > finalResolution.Height {
			return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("video_layout region height is out of range: %d", height))
		}
		height -= height % 2
	} else {
		height = finalResolution.Height - r.YPos
		if height < 0 {
			height = 0
		}
	}
	if width != 0 {
		if width < domain.ResolutionMin || width > finalResolution.Width {
			return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("video_layout region width is out of range: %d", width))
		}
		width -= width % 2
	} else {
		width = finalResolution.Width - r.XPos
		if width < 0 {
			width = 0
		}
	}

	if r.YPos < 0 || r.YPos >= finalResolution.Height {
		return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("video_layout region y_pos is out of range: %d", r.YPos))
	}
	if r.XPos < 0 || r.XPos >= finalResolution.Width {
		return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("video_layout region x_pos is out of range: %d", r.XPos))
	}
	if r.ZPos < -99 || r.ZPos > 99 {
		return domain.Region{}, domain.WrapConfiguration(fmt.Errorf("video_layout region z_pos is out of range: %d", r.ZPos))
	}

	cellWidth, cellHeight, topBorder, leftBorder, err := decideCellResolutionAndBorders(width, height, rows, columns, finalResolution)
	if err != nil {
		return domain.Region{}, err
	}

	grid := domain.Grid{
		Rows:            rows,
		Columns:         columns,
		CellWidth:       cellWidth,
		CellHeight:      cellHeight,
		AssignedSources: assigned,
	}

	return domain.Region{
		Grid:              grid,
		SourceIDs:         sourceIDs,
		Width:             width,
		Height:            height,
		Position:          domain.PixelPosition{X: evenFloor(r.XPos), Y: evenFloor(r.YPos)},
		ZPos:              r.ZPos,
		TopBorderPixels:   topBorder,
		LeftBorderPixels:  leftBorder,
		InnerBorderPixels: BorderPixels,
	}, nil
}

func evenFloor(v int) int { return v - v%2 }

func decideCellResolutionAndBorders(width, height, rows, columns int, resolution domain.Resolution) (cellWidth, cellHeight, topBorder, leftBorder int, err error) {
	gridWidth, gridHeight := width, height
	if gridWidth != resolution.Width {
		gridWidth -= BorderPixels * 2
	}
	if gridHeight != resolution.Height {
		gridHeight -= BorderPixels * 2
	}
	if gridWidth < 0 || gridHeight < 0 {
		return 0, 0, 0, 0, domain.WrapConfiguration(fmt.Errorf("region too small for its outer border"))
	}

	horizontalInner := BorderPixels * (columns - 1)
	gridWidthNoInner := gridWidth - horizontalInner
	if gridWidthNoInner < 0 {
		gridWidthNoInner = 0
	}
	cellWidth = evenFloor(gridWidthNoInner / columns)

	verticalInner := BorderPixels * (rows - 1)
	gridHeightNoInner := gridHeight - verticalInner
	if gridHeightNoInner < 0 {
		gridHeightNoInner = 0
	}
	cellHeight = evenFloor(gridHeightNoInner / rows)

	verticalOuter := height - (cellHeight*rows + verticalInner)
	horizontalOuter := width - (cellWidth*columns + horizontalInner)
	if verticalOuter < 0 {
		verticalOuter = 0
	}
	if horizontalOuter < 0 {
		horizontalOuter = 0
	}

	topBorder = evenFloor(verticalOuter / 2)
	leftBorder = evenFloor(horizontalOuter / 2)
	return cellWidth, cellHeight, topBorder, leftBorder, nil
}
