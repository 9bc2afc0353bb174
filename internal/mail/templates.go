package mail

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"templatestore/internal/domain"
)

// Template is the Liquid source of one message kind.
type Template struct {
	Subject string
	HTML    string
	Text    string
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Templates renders named Liquid templates, caching parsed sources.
type Templates struct {
	engine  *liquid.Engine
	sources map[string]Template
	cache   sync.Map // source -> *liquid.Template
}

func NewTemplates(sources map[string]Template) *Templates {
	engine := liquid.NewEngine()
	engine.RegisterFilter("money", func(cents any, currency string) string {
		var v int64
		switch n := cents.(type) {
		case int:
			v = int64(n)
		case int64:
			v = n
		case float64:
			v = int64(n)
		}
		return fmt.Sprintf("%d.%02d %s", v/100, v%100, currency)
	})
	return &Templates{engine: engine, sources: sources}
}

// Render renders the named template. A non-empty subject overrides the
// template's own subject and is itself rendered as Liquid.
func (t *Templates) Render(name, subject string, data map[string]any) (Rendered, error) {
	src, ok := t.sources[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", name)
	}
	if subject == "" {
		subject = src.Subject
	}
	var (
		out Rendered
		err error
	)
	if out.Subject, err = t.render(subject, data); err != nil {
		return Rendered{}, err
	}
	if out.HTML, err = t.render(src.HTML, data); err != nil {
		return Rendered{}, err
	}
	if out.Text, err = t.render(src.Text, data); err != nil {
		return Rendered{}, err
	}
	return out, nil
}

func (t *Templates) render(source string, data map[string]any) (string, error) {
	if source == "" {
		return "", nil
	}
	var tpl *liquid.Template
	if cached, ok := t.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := t.engine.ParseString(source)
		if err != nil {
			return "", err
		}
		t.cache.Store(source, parsed)
		tpl = parsed
	}
	out, err := tpl.RenderString(data)
	if err != nil {
		return "", err
	}
	return out, nil
}

// DefaultTemplates holds the storefront's transactional messages.
func DefaultTemplates() *Templates {
	return NewTemplates(map[string]Template{
		domain.TemplatePaymentConfirmed: {
			Subject: "Your order {{ order_id }} is confirmed",
			HTML: `<p>Hi {{ name | default: "there" }},</p>
<p>Thanks for your purchase. We received {{ total_cents | money: currency }} for order <strong>{{ order_id }}</strong>.</p>
{% if downloads.size > 0 %}<p>Your downloads:</p>
<ul>{% for d in downloads %}
<li><a href="{{ d.url }}">{{ d.file_name }}</a> ({{ d.max_downloads }} downloads, until {{ d.expires_at }})</li>{% endfor %}
</ul>{% endif %}
<p><a href="{{ order_url }}">View your order</a></p>`,
			Text: `Hi {{ name | default: "there" }},

Thanks for your purchase. We received {{ total_cents | money: currency }} for order {{ order_id }}.
{% for d in downloads %}
- {{ d.file_name }}: {{ d.url }}{% endfor %}

View your order: {{ order_url }}
`,
		},
		domain.TemplateOTPCode: {
			Subject: "Your verification code",
			HTML:    `<p>Your verification code is <strong>{{ code }}</strong>. It expires shortly.</p>`,
			Text:    "Your verification code is {{ code }}. It expires shortly.\n",
		},
	})
}
