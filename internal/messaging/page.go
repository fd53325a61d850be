package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// Status is the outcome reported to the opener window.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ContentType is the media type of rendered pages.
const ContentType = "text/html; charset=utf-8"

// payload is the JSON object appended to the authorization message.
type payload struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

type pageData struct {
	Provider  string
	Succeeded bool
	// ProviderJS, MessageJS and AllowedJS are pre-quoted JS literals.
	ProviderJS template.JS
	MessageJS  template.JS
	AllowedJS  template.JS
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Authorizing {{.Provider}}</title>
</head>
<body>
<p>{{if .Succeeded}}Authorized with {{.Provider}}. This window will close automatically.{{else}}Authorization with {{.Provider}} failed.{{end}}</p>
<script>
(function () {
  var provider = {{.ProviderJS}};
  var message = {{.MessageJS}};
  var allowed = {{.AllowedJS}};

  function hostname(host) {
    if (host.charAt(0) === '[') {
      var end = host.indexOf(']');
      return end < 0 ? host : host.substring(0, end + 1);
    }
    var colon = host.lastIndexOf(':');
    return colon < 0 ? host : host.substring(0, colon);
  }

  function originAllowed(origin) {
    if (allowed.length === 0) {
      return true;
    }
    origin = String(origin || '').toLowerCase();
    var sep = origin.indexOf('://');
    var scheme = sep < 0 ? '' : origin.substring(0, sep);
    var host = sep < 0 ? '' : origin.substring(sep + 3);
    for (var i = 0; i < allowed.length; i++) {
      var entry = allowed[i];
      if (entry.indexOf('://') >= 0) {
        if (entry === origin) {
          return true;
        }
        continue;
      }
      if (scheme !== 'https' && scheme !== 'http') {
        continue;
      }
      if (entry.indexOf('*.') === 0) {
        var suffix = entry.substring(1);
        var name = hostname(host);
        if (name.length > suffix.length && name.substring(name.length - suffix.length) === suffix) {
          return true;
        }
        continue;
      }
      if (entry === host) {
        return true;
      }
    }
    return false;
  }

  function receiveMessage(e) {
    if (!originAllowed(e.origin)) {
      return;
    }
    if (window.opener) {
      window.opener.postMessage(message, e.origin);
    }
    window.removeEventListener('message', receiveMessage, false);
  }

  window.addEventListener('message', receiveMessage, false);
  if (window.opener) {
    window.opener.postMessage('authorizing:' + provider, '*');
  }
})();
</script>
</body>
</html>
`))

// Message returns the authorization message posted to the opener:
// authorization:{provider}:{status}:{"token":"...","provider":"..."}.
func Message(provider string, status Status, token string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(payload{Token: token, Provider: provider}); err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return fmt.Sprintf("authorization:%s:%s:%s", provider, status, strings.TrimRight(buf.String(), "\n")), nil
}

// Render produces the messaging page.
// The access token only appears in the message that is posted to a verified origin.
func Render(provider string, status Status, token string, allowedOrigins []string) ([]byte, error) {
	message, err := Message(provider, status, token)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeOrigins(allowedOrigins)
	quoted := make([]string, len(normalized))
	for i, o := range normalized {
		quoted[i] = string(jsQuote(o))
	}

	data := pageData{
		Provider:   provider,
		Succeeded:  status == StatusSuccess,
		ProviderJS: jsQuote(provider),
		MessageJS:  jsQuote(message),
		AllowedJS:  template.JS("[" + strings.Join(quoted, ", ") + "]"),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render messaging page: %w", err)
	}
	return buf.Bytes(), nil
}

// jsQuote returns s as a single-quoted JavaScript string literal that is safe
// inside an HTML script element. Double quotes are kept as-is.
func jsQuote(s string) template.JS {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '<', '>', '&', '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return template.JS(b.String())
}
