package linkedevents

import (
	"encoding/json"
	"fmt"
)

// Event はLinkedEventsのイベント。
//
// 主要なフィールドのみを型付きで保持し、受け取ったJSONは Raw にそのまま残す。
// プロキシとして返す際は Raw をそのまま出力するため、未知のフィールドも失われない。
type Event struct {
	// ID はイベントID（例: "tet:af4mzhx3ke"）。
	ID string `json:"id"`
	// Name は言語コードごとのイベント名。
	Name map[string]string `json:"name,omitempty"`
	// Publisher は公開組織のID。
	Publisher string `json:"publisher,omitempty"`
	// StartTime は開始日時。
	StartTime *string `json:"start_time,omitempty"`
	// EndTime は終了日時。
	EndTime *string `json:"end_time,omitempty"`
	// Images はイベントに紐づく画像。
	Images []Image `json:"images,omitempty"`
	// Raw は上流から受け取ったJSON。
	Raw json.RawMessage `json:"-"`
}

// eventFields はJSONの変換で再帰しないための別名型。
type eventFields Event

// UnmarshalJSON は型付きフィールドを読み込み、元のJSONを Raw に保持する。
func (e *Event) UnmarshalJSON(data []byte) error {
	var f eventFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
	}
	*e = Event(f)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON は Raw があればそれを、無ければ型付きフィールドを出力する。
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(eventFields(e))
}

// ImageIDs はイベントが参照する画像IDを返す。
func (e Event) ImageIDs() []string {
	ids := make([]string, 0, len(e.Images))
	for _, img := range e.Images {
		if img.ID != "" {
			ids = append(ids, img.ID.String())
		}
	}
	return ids
}

// Image はLinkedEventsの画像。
type Image struct {
	// ID は画像ID。LinkedEventsは数値で返す。
	ID json.Number `json:"id"`
	// URL は画像ファイルのURL。
	URL string `json:"url,omitempty"`
	// Name は画像名。
	Name string `json:"name,omitempty"`
	// Publisher は公開組織のID。
	Publisher string `json:"publisher,omitempty"`
	// DataSource は登録元データソース。
	DataSource string `json:"data_source,omitempty"`
	// LastModifiedTime は最終更新日時。
	LastModifiedTime string `json:"last_modified_time,omitempty"`
}

// ImageMetadata は画像のメタデータ更新時に送信する内容。
type ImageMetadata struct {
	// Name は画像名。
	Name string `json:"name,omitempty"`
	// AltText は代替テキスト。
	AltText string `json:"alt_text,omitempty"`
	// PhotographerName は撮影者名。
	PhotographerName string `json:"photographer_name,omitempty"`
	// License はライセンス（例: "cc_by"）。
	License string `json:"license,omitempty"`
}
