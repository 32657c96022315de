package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"battlelog-tracker/internal/config"
	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var (
	ErrUnknownSeason = errors.New("season has no configured spreadsheet")
	ErrRowNotFound   = errors.New("row not found")
	ErrSheetNotFound = errors.New("worksheet not found")
)

// roster and icon sheets keep their header in the first row
const rosterHeaderRow = 1

const (
	rosterNameColumn = "キャラ名"
	rosterIconColumn = "アイコン"
	iconKeyColumn    = "種別"
)

type SheetsClient struct {
	http    *Client
	baseURL string
	cfg     *config.Config
	logger  zerolog.Logger

	// spreadsheetID/title -> numeric sheet id, needed by batchUpdate
	sheetIDs sync.Map
}

func NewSheetsClient(cfg *config.Config, logger zerolog.Logger) *SheetsClient {
	return &SheetsClient{
		http:    NewClient(cfg.SheetsAPIToken),
		baseURL: strings.TrimRight(cfg.SheetsBaseURL, "/"),
		cfg:     cfg,
		logger:  logger.With().Str("client", "sheets").Logger(),
	}
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type batchUpdateRequest struct {
	Requests []batchRequest `json:"requests"`
}

type batchRequest struct {
	InsertDimension *insertDimension `json:"insertDimension,omitempty"`
}

type insertDimension struct {
	Range             dimensionRange `json:"range"`
	InheritFromBefore bool           `json:"inheritFromBefore"`
}

type dimensionRange struct {
	SheetID    int64  `json:"sheetId"`
	Dimension  string `json:"dimension"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type updateValuesResponse struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedCells int    `json:"updatedCells"`
}

func a1Range(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

func (c *SheetsClient) valuesURL(spreadsheetID, rng string) string {
	return fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rng))
}

// FetchRows reads a worksheet whose header is at headerRow (1-based) and
// returns one row per line below it, keyed by disambiguated header.
func (c *SheetsClient) FetchRows(ctx context.Context, spreadsheetID, sheet string, headerRow int) ([]domain.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	rng := a1Range(sheet, fmt.Sprintf("A%d:ZZ", headerRow))
	vr, err := doRequest[valueRange](ctx, c.http, request{
		method: fasthttp.MethodGet,
		url:    c.valuesURL(spreadsheetID, rng),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", sheet, err)
	}

	rows := rowsFromValues(vr.Values)
	c.logger.Debug().Str("sheet", sheet).Int("count", len(rows)).Msg("rows fetched")
	return rows, nil
}

// FetchRecords returns the converted battle logs of one origin of season,
// tagged with that origin and season.
func (c *SheetsClient) FetchRecords(ctx context.Context, season string, origin domain.Origin) ([]domain.BattleRecord, error) {
	spreadsheetID, ok := c.cfg.SpreadsheetFor(season)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeason, season)
	}

	sheet := c.cfg.OutputSheet
	if origin == domain.OriginFederated {
		sheet = c.cfg.ImportSheet
	}

	rows, err := c.FetchRows(ctx, spreadsheetID, sheet, constants.HeaderRow)
	if err != nil {
		return nil, err
	}

	records := make([]domain.BattleRecord, len(rows))
	for i, row := range rows {
		rec := domain.RecordFromRow(row, season)
		rec.Origin = origin
		records[i] = rec
	}
	return records, nil
}

// FetchLatestRecord reads the first data row of the self-hosted output sheet
// of the current season, where the converter writes its newest result.
func (c *SheetsClient) FetchLatestRecord(ctx context.Context) (domain.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	rng := a1Range(c.cfg.OutputSheet, fmt.Sprintf("A%d:ZZ%d", constants.HeaderRow, constants.FirstDataRow))
	vr, err := doRequest[valueRange](ctx, c.http, request{
		method: fasthttp.MethodGet,
		url:    c.valuesURL(c.cfg.OutputSheetID, rng),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest row: %w", err)
	}

	rows := rowsFromValues(vr.Values)
	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, ErrRowNotFound
	}
	return rows[0], nil
}

// InsertRow shifts the rows at and below position (1-based) down by one and
// writes values into the freed row.
func (c *SheetsClient) InsertRow(ctx context.Context, spreadsheetID, sheet string, position int, values []string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	sheetID, err := c.sheetID(ctx, spreadsheetID, sheet)
	if err != nil {
		return err
	}

	_, err = doRequest[struct{}](ctx, c.http, request{
		method: fasthttp.MethodPost,
		url:    fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(spreadsheetID)),
		body: batchUpdateRequest{Requests: []batchRequest{{
			InsertDimension: &insertDimension{
				Range: dimensionRange{
					SheetID:    sheetID,
					Dimension:  "ROWS",
					StartIndex: position - 1,
					EndIndex:   position,
				},
			},
		}}},
	})
	if err != nil {
		return fmt.Errorf("failed to insert row into %s: %w", sheet, err)
	}

	rng := a1Range(sheet, "A"+strconv.Itoa(position))
	res, err := doRequest[updateValuesResponse](ctx, c.http, request{
		method: fasthttp.MethodPut,
		url:    c.valuesURL(spreadsheetID, rng) + "?valueInputOption=USER_ENTERED",
		body: valueRange{
			Range:          rng,
			MajorDimension: "ROWS",
			Values:         [][]string{values},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write row into %s: %w", sheet, err)
	}

	c.logger.Info().Str("sheet", sheet).Int("position", position).Str("range", res.UpdatedRange).Msg("row inserted")
	return nil
}

// InsertRawRow inserts an uploaded raw row beneath the two header rows of the
// raw battle-log sheet.
func (c *SheetsClient) InsertRawRow(ctx context.Context, values []string) error {
	return c.InsertRow(ctx, c.cfg.BattleLogSheetID, c.cfg.RawSheet, constants.InsertPosition, values)
}

func (c *SheetsClient) FetchRoster(ctx context.Context, sheet string) ([]domain.Character, error) {
	rows, err := c.FetchRows(ctx, c.cfg.CharDataSheetID, sheet, rosterHeaderRow)
	if err != nil {
		return nil, err
	}

	roster := make([]domain.Character, 0, len(rows))
	for _, row := range rows {
		name, icon := row[rosterNameColumn], row[rosterIconColumn]
		if name == "" || icon == "" {
			continue
		}
		roster = append(roster, domain.Character{Name: name, Icon: icon})
	}
	return roster, nil
}

func (c *SheetsClient) FetchStrikers(ctx context.Context) ([]domain.Character, error) {
	return c.FetchRoster(ctx, c.cfg.StrikerSheet)
}

func (c *SheetsClient) FetchSpecials(ctx context.Context) ([]domain.Character, error) {
	return c.FetchRoster(ctx, c.cfg.SpecialSheet)
}

func (c *SheetsClient) FetchIconMap(ctx context.Context) (domain.IconMap, error) {
	rows, err := c.FetchRows(ctx, c.cfg.CharDataSheetID, c.cfg.IconSheet, rosterHeaderRow)
	if err != nil {
		return nil, err
	}

	icons := make(domain.IconMap, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row[iconKeyColumn])
		icon := strings.TrimSpace(row[rosterIconColumn])
		if key == "" || icon == "" {
			continue
		}
		icons[key] = icon
	}
	return icons, nil
}

func (c *SheetsClient) sheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	key := spreadsheetID + "/" + title
	if id, ok := c.sheetIDs.Load(key); ok {
		return id.(int64), nil
	}

	q := url.Values{"fields": {"sheets.properties(sheetId,title)"}}
	meta, err := doRequest[spreadsheetMeta](ctx, c.http, request{
		method: fasthttp.MethodGet,
		url:    fmt.Sprintf("%s/v4/spreadsheets/%s?%s", c.baseURL, url.PathEscape(spreadsheetID), q.Encode()),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch spreadsheet metadata: %w", err)
	}

	for _, s := range meta.Sheets {
		c.sheetIDs.Store(spreadsheetID+"/"+s.Properties.Title, s.Properties.SheetID)
	}
	if id, ok := c.sheetIDs.Load(key); ok {
		return id.(int64), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrSheetNotFound, title)
}

// rowsFromValues treats values[0] as the header and keys every following
// line by it. Blank headers become 空欄 and the n-th repeat of a header h
// becomes h_n. Cells past the header width are dropped; missing trailing
// cells are absent keys.
func rowsFromValues(values [][]string) []domain.Row {
	if len(values) == 0 {
		return nil
	}
	headers := disambiguateHeaders(values[0])

	rows := make([]domain.Row, 0, len(values)-1)
	for _, line := range values[1:] {
		row := make(domain.Row, len(line))
		for i, v := range line {
			if i >= len(headers) {
				break
			}
			row[headers[i]] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func disambiguateHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	headers := make([]string, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(h)
		if base == "" {
			base = "空欄"
		}
		n := seen[base] + 1
		seen[base] = n
		if n > 1 {
			headers[i] = base + "_" + strconv.Itoa(n)
		} else {
			headers[i] = base
		}
	}
	return headers
}

func isBlank(row domain.Row) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
