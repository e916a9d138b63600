// Package template renders content variant payloads with per-recipient
// variables using the Liquid template language.
package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Service handles Liquid template rendering with parsed-template caching.
// Rendering is lax: a variable missing from the recipient's bindings renders
// as an empty string rather than failing the send.
type Service struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewService creates a template service with the dispatch-specific filters
// registered.
func NewService() *Service {
	s := &Service{engine: liquid.NewEngine()}
	s.registerFilters()
	return s
}

func (s *Service) registerFilters() {
	// Fallback for empty bindings: {{ name | default: "there" }}
	s.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		str := fmt.Sprintf("%v", value)
		if str == "" || str == "<nil>" {
			return fallback
		}
		return value
	})

	// First name extraction: {{ name | firstword }}
	s.engine.RegisterFilter("firstword", func(str string) string {
		fields := strings.Fields(str)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	})

	// Capitalize first letter: {{ name | capitalize }}
	s.engine.RegisterFilter("capitalize", func(str string) string {
		if len(str) == 0 {
			return str
		}
		return strings.ToUpper(string(str[0])) + strings.ToLower(str[1:])
	})
}

// RenderString renders a single template string against the recipient's
// variable bindings.
func (s *Service) RenderString(tpl string, r *domain.Recipient) (string, error) {
	if tpl == "" || !strings.Contains(tpl, "{{") && !strings.Contains(tpl, "{%") {
		return tpl, nil
	}

	var parsed *liquid.Template
	if cached, ok := s.cache.Load(tpl); ok {
		parsed = cached.(*liquid.Template)
	} else {
		var err error
		parsed, err = s.engine.ParseString(tpl)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		s.cache.Store(tpl, parsed)
	}

	out, err := parsed.RenderString(bindings(r))
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderPayload returns a deep copy of the payload with every text-bearing
// field rendered against the recipient's variables. The input is not mutated;
// a variant's raw payload is shared across all recipients of a campaign.
func (s *Service) RenderPayload(p domain.Payload, r *domain.Recipient) (domain.Payload, error) {
	out := p

	render := func(v string) (string, error) { return s.RenderString(v, r) }
	var err error

	if p.Text != nil {
		cp := *p.Text
		if cp.Body, err = render(cp.Body); err != nil {
			return out, err
		}
		out.Text = &cp
	}
	if p.Media != nil {
		cp := *p.Media
		if cp.Caption, err = render(cp.Caption); err != nil {
			return out, err
		}
		out.Media = &cp
	}
	if p.List != nil {
		cp := *p.List
		if cp.Title, err = render(cp.Title); err != nil {
			return out, err
		}
		if cp.Body, err = render(cp.Body); err != nil {
			return out, err
		}
		out.List = &cp
	}
	if p.Buttons != nil {
		cp := *p.Buttons
		if cp.Body, err = render(cp.Body); err != nil {
			return out, err
		}
		if cp.Footer, err = render(cp.Footer); err != nil {
			return out, err
		}
		out.Buttons = &cp
	}
	if p.Poll != nil {
		cp := *p.Poll
		if cp.Question, err = render(cp.Question); err != nil {
			return out, err
		}
		out.Poll = &cp
	}
	if p.Carousel != nil {
		cp := *p.Carousel
		if cp.Body, err = render(cp.Body); err != nil {
			return out, err
		}
		cards := make([]domain.CarouselCard, len(cp.Cards))
		copy(cards, cp.Cards)
		for i := range cards {
			if cards[i].Title, err = render(cards[i].Title); err != nil {
				return out, err
			}
			if cards[i].Body, err = render(cards[i].Body); err != nil {
				return out, err
			}
		}
		cp.Cards = cards
		out.Carousel = &cp
	}
	if len(p.Combined) > 0 {
		blocks := make([]domain.Payload, len(p.Combined))
		for i, block := range p.Combined {
			blocks[i], err = s.RenderPayload(block, r)
			if err != nil {
				return out, err
			}
		}
		out.Combined = blocks
	}

	return out, nil
}

func bindings(r *domain.Recipient) map[string]interface{} {
	b := make(map[string]interface{}, len(r.Variables)+2)
	for k, v := range r.Variables {
		b[k] = v
	}
	if _, ok := b["name"]; !ok {
		b["name"] = r.Name
	}
	if _, ok := b["address"]; !ok {
		b["address"] = r.Address
	}
	return b
}
