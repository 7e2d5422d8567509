package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
)

const (
	outputJSON  = "json"
	outputTable = "table"
)

type hashResult struct {
	Name    string         `json:"name"`
	AssetID domain.AssetID `json:"asset_id"`
}

type existsResult struct {
	AssetID domain.AssetID `json:"asset_id"`
	Exists  bool           `json:"exists"`
}

type ownerResult struct {
	AssetID domain.AssetID  `json:"asset_id"`
	Owner   domain.Identity `json:"owner"`
}

type ownedResult struct {
	Owner    domain.Identity  `json:"owner"`
	AssetIDs []domain.AssetID `json:"asset_ids"`
}

type eventList []models.Event

type eventsResult struct {
	Events eventList `json:"events"`
	Next   int64     `json:"next"`
}

func render(w io.Writer, format string, v any) error {
	if format == outputTable {
		if data := tableData(v); data != nil {
			s, err := pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(data).Srender()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, s)
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// tableData returns header plus rows, or nil when v has no tabular form.
func tableData(v any) pterm.TableData {
	switch v := v.(type) {
	case hashResult:
		return pterm.TableData{{"NAME", "ASSET ID"}, {v.Name, v.AssetID.String()}}
	case existsResult:
		return pterm.TableData{{"ASSET ID", "EXISTS"}, {v.AssetID.String(), strconv.FormatBool(v.Exists)}}
	case ownerResult:
		return pterm.TableData{{"ASSET ID", "OWNER"}, {v.AssetID.String(), v.Owner.String()}}
	case *models.AssetRecord:
		return recordTable(v)
	case *models.Receipt:
		data := recordTable(&v.Record)
		data[0] = append(data[0], "SEQUENCE", "EVENT")
		data[1] = append(data[1], strconv.FormatInt(v.Event.Sequence, 10), v.Event.Kind.String())
		return data
	case ownedResult:
		data := pterm.TableData{{"OWNER", "ASSET ID"}}
		for _, id := range v.AssetIDs {
			data = append(data, []string{v.Owner.String(), id.String()})
		}
		return data
	case eventList:
		return eventTable(v)
	case eventsResult:
		return eventTable(v.Events)
	}
	return nil
}

func recordTable(r *models.AssetRecord) pterm.TableData {
	return pterm.TableData{
		{"ASSET ID", "OWNER", "METADATA", "REGISTERED"},
		{r.AssetID.String(), r.Owner.String(), r.Metadata, r.RegistrationTime.Format(time.RFC3339)},
	}
}

func eventTable(events eventList) pterm.TableData {
	data := pterm.TableData{{"SEQ", "KIND", "ASSET ID", "ACTOR", "DETAIL", "TIME"}}
	for _, e := range events {
		data = append(data, []string{
			strconv.FormatInt(e.Sequence, 10),
			e.Kind.String(),
			e.AssetID.String(),
			e.Actor.String(),
			eventDetail(e),
			e.Timestamp.Format(time.RFC3339),
		})
	}
	return data
}

func eventDetail(e models.Event) string {
	switch e.Kind {
	case models.EventOwnershipTransferred:
		return e.PreviousOwner.String() + " -> " + e.NewOwner.String()
	case models.EventAssetMetadataUpdated:
		return strconv.Quote(e.Metadata)
	default:
		return "owner " + e.Owner.String()
	}
}
