package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// VariantType identifies the payload kind of a content variant.
type VariantType string

const (
	VariantText     VariantType = "text"
	VariantMedia    VariantType = "media"
	VariantList     VariantType = "list"
	VariantButtons  VariantType = "buttons"
	VariantPoll     VariantType = "poll"
	VariantCarousel VariantType = "carousel"
	VariantCombined VariantType = "combined"
)

// ContentVariant is a reusable message payload attached to a campaign.
// Variants are cycled across channels by the allocator.
type ContentVariant struct {
	ID         string      `json:"id" db:"id"`
	CampaignID string      `json:"campaign_id" db:"campaign_id"`
	Type       VariantType `json:"type" db:"type"`
	OrderIndex int         `json:"order_index" db:"order_index"`
	Active     bool        `json:"active" db:"active"`
	Payload    Payload     `json:"payload" db:"payload"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// Payload is the tagged union of message payload kinds. Exactly one case is
// populated, matching the variant's Type. The Combined case is a sequence of
// other cases executed in order as one logical send.
type Payload struct {
	Text     *TextPayload     `json:"text,omitempty"`
	Media    *MediaPayload    `json:"media,omitempty"`
	List     *ListPayload     `json:"list,omitempty"`
	Buttons  *ButtonsPayload  `json:"buttons,omitempty"`
	Poll     *PollPayload     `json:"poll,omitempty"`
	Carousel *CarouselPayload `json:"carousel,omitempty"`
	Combined []Payload        `json:"combined,omitempty"`
}

// TextPayload is a plain text message. Body supports Liquid variables.
type TextPayload struct {
	Body string `json:"body"`
}

// MediaPayload references an uploaded media object with an optional caption.
type MediaPayload struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ListPayload is an interactive list message.
type ListPayload struct {
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ButtonText string    `json:"button_text"`
	Sections   []Section `json:"sections"`
}

// Section groups rows inside a list payload.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Row is a selectable entry inside a list section.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ButtonsPayload is a message with quick-reply buttons.
type ButtonsPayload struct {
	Body    string   `json:"body"`
	Footer  string   `json:"footer,omitempty"`
	Buttons []string `json:"buttons"`
}

// PollPayload is a poll with selectable options.
type PollPayload struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	MultipleAnswers bool     `json:"multiple_answers"`
}

// CarouselPayload is a horizontally scrollable set of cards.
type CarouselPayload struct {
	Body  string         `json:"body"`
	Cards []CarouselCard `json:"cards"`
}

// CarouselCard is one card of a carousel.
type CarouselCard struct {
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// Validate checks that the payload case matches the declared variant type and
// that the populated case is well-formed.
func (v *ContentVariant) Validate() error {
	p := v.Payload
	switch v.Type {
	case VariantText:
		if p.Text == nil || p.Text.Body == "" {
			return fmt.Errorf("text variant %s: empty body", v.ID)
		}
	case VariantMedia:
		if p.Media == nil || p.Media.URL == "" {
			return fmt.Errorf("media variant %s: missing url", v.ID)
		}
	case VariantList:
		if p.List == nil || len(p.List.Sections) == 0 {
			return fmt.Errorf("list variant %s: no sections", v.ID)
		}
	case VariantButtons:
		if p.Buttons == nil || len(p.Buttons.Buttons) == 0 {
			return fmt.Errorf("buttons variant %s: no buttons", v.ID)
		}
	case VariantPoll:
		if p.Poll == nil || len(p.Poll.Options) < 2 {
			return fmt.Errorf("poll variant %s: needs at least two options", v.ID)
		}
	case VariantCarousel:
		if p.Carousel == nil || len(p.Carousel.Cards) == 0 {
			return fmt.Errorf("carousel variant %s: no cards", v.ID)
		}
	case VariantCombined:
		if len(p.Combined) == 0 {
			return fmt.Errorf("combined variant %s: no blocks", v.ID)
		}
	default:
		return fmt.Errorf("variant %s: unknown type %q", v.ID, v.Type)
	}
	return nil
}

// MarshalPayload serializes the payload for the JSONB column.
func (v *ContentVariant) MarshalPayload() ([]byte, error) {
	return json.Marshal(v.Payload)
}

// UnmarshalPayload deserializes the JSONB column into the payload union.
func (v *ContentVariant) UnmarshalPayload(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &v.Payload)
}
