// internal/notify/render/renderer.go
package render

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
)

// TemplateSource resolves the template for a (tenant, type, channel), falling
// back to the platform default.
type TemplateSource interface {
	Resolve(ctx context.Context, tenantID, typeCode string, channel models.Channel) (*models.NotificationTemplate, error)
}

// Rendered is the channel-ready output of one render pass.
type Rendered struct {
	Subject    string
	Body       string
	Unresolved []string // placeholder names left verbatim in the output
	Truncated  bool     // SMS body shortened to the rune cap
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Renderer substitutes {{var}} placeholders and applies per-channel shaping.
// Rendering is pure: the same template and variables always produce the same
// output.
type Renderer struct {
	templates   TemplateSource
	smsMaxRunes int
	log         logger.Logger
}

func NewRenderer(templates TemplateSource, smsMaxRunes int, log logger.Logger) *Renderer {
	if smsMaxRunes <= 0 {
		smsMaxRunes = 1600
	}
	return &Renderer{templates: templates, smsMaxRunes: smsMaxRunes, log: log}
}

// Render resolves the template and produces the final subject and body for
// the channel. A missing template (no tenant row, no platform default) is a
// configuration error, not a transient one.
func (r *Renderer) Render(ctx context.Context, tenantID, typeCode string, channel models.Channel, vars map[string]string) (*Rendered, error) {
	tmpl, err := r.templates.Resolve(ctx, tenantID, typeCode, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, commonerrors.NewTemplateMissingError(tenantID, typeCode, string(channel))
		}
		return nil, commonerrors.NewDatabaseError("resolve template", err)
	}

	out := &Rendered{}
	unresolved := map[string]bool{}

	switch channel {
	case models.ChannelEmail:
		// Subject stays plain text; only the body is HTML-escaped.
		out.Subject = substitute(tmpl.Subject, vars, unresolved, nil)
		out.Body = substitute(tmpl.Body, vars, unresolved, html.EscapeString)

	case models.ChannelSMS:
		out.Body = substitute(tmpl.Body, vars, unresolved, nil)
		if runes := []rune(out.Body); len(runes) > r.smsMaxRunes {
			out.Body = string(runes[:r.smsMaxRunes])
			out.Truncated = true
		}

	case models.ChannelWebhook:
		// Webhooks carry a structured payload, not templated prose.
		payload, err := webhookPayload(typeCode, vars)
		if err != nil {
			return nil, err
		}
		out.Body = payload

	default:
		out.Subject = substitute(tmpl.Subject, vars, unresolved, nil)
		out.Body = substitute(tmpl.Body, vars, unresolved, nil)
	}

	if len(unresolved) > 0 {
		for name := range unresolved {
			out.Unresolved = append(out.Unresolved, name)
		}
		sort.Strings(out.Unresolved)
		r.log.Warn("template placeholders unresolved", map[string]interface{}{
			"tenant_id":  tenantID,
			"type_code":  typeCode,
			"channel":    string(channel),
			"unresolved": out.Unresolved,
		})
	}

	return out, nil
}

// substitute replaces {{name}} with vars[name]. Unknown names are left
// verbatim and collected, never silently dropped. escape, when set, is
// applied to substituted values only, not to the template text itself.
func substitute(text string, vars map[string]string, unresolved map[string]bool, escape func(string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			unresolved[name] = true
			return match
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
}

func webhookPayload(typeCode string, vars map[string]string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"type": typeCode,
		"data": vars,
	})
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}
	return string(body), nil
}
