// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
)

const pageStyle = `<style>
  body { font-family: system-ui, -apple-system, sans-serif; max-width: 860px;
         margin: 0 auto; padding: 40px 20px; color: #2c2c1e; background: #faf8f0; }
  h1 { color: #2d5016; margin-bottom: 4px; }
  .meta { color: #6b6b5a; font-size: 0.9em; }
  code { font-family: ui-monospace, monospace; background: #f0ece0;
         padding: 2px 6px; border-radius: 3px; font-size: 0.9em; }
  a { color: #2d5016; }
  .card { border: 1px solid #e8e4d8; border-radius: 8px; padding: 16px 20px;
          margin-bottom: 16px; background: #fff; }
  .name { font-family: ui-monospace, monospace; font-weight: 600; font-size: 1.1em; color: #2d5016; }
  .badge { margin-left: 8px; padding: 2px 8px; border-radius: 4px; font-size: 0.75em;
           text-transform: uppercase; background: #e8f5e0; color: #2d5016; }
  table { width: 100%; border-collapse: collapse; font-size: 0.9em; margin-top: 10px; }
  th { text-align: left; padding: 6px 8px; background: #f0ece0; }
  td { padding: 6px 8px; border-bottom: 1px solid #f0ece0; vertical-align: top; }
  .none { color: #6b6b5a; font-style: italic; }
</style>`

var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
` + pageStyle + `
</head>
<body>{{end}}

{{define "landing"}}{{template "head" .}}
<h1>{{.Service}}</h1>
<p class="meta">vgi_rpc endpoint &middot; server <code>{{.ServerID}}</code></p>
<p>Send Arrow IPC requests to <code>POST {{.Prefix}}/&lt;method&gt;</code>.</p>
<ul>
{{range .Methods}}<li><code>{{.Name}}</code>{{if .Doc}} &middot; {{.Doc}}{{end}}</li>
{{end}}</ul>
<p><a href="{{.Prefix}}/describe">API reference</a></p>
</body>
</html>{{end}}

{{define "describe"}}{{template "head" .}}
<h1>{{.Service}}</h1>
<p class="meta">API reference &middot; server <code>{{.ServerID}}</code></p>
{{range .Methods}}<div class="card">
<span class="name">{{.Name}}</span><span class="badge">{{.MethodType}}</span>
{{if .Doc}}<p>{{.Doc}}</p>{{end}}
{{if .Params}}<table>
<tr><th>Parameter</th><th>Type</th><th>Default</th><th>Description</th></tr>
{{range .Params}}<tr><td><code>{{.Name}}</code></td><td><code>{{.Type}}</code></td><td>{{if .Default}}<code>{{.Default}}</code>{{else}}&ndash;{{end}}</td><td>{{.Doc}}</td></tr>
{{end}}</table>{{else}}<p class="none">No parameters</p>{{end}}
</div>
{{end}}</body>
</html>{{end}}

{{define "notfound"}}{{template "head" .}}
<h1>404 Not Found</h1>
<p>This is a <code>vgi_rpc</code> endpoint serving <strong>{{.Service}}</strong>.</p>
<p>Methods are called with <code>POST {{.Prefix}}/&lt;method&gt;</code>; see the
<a href="{{.Prefix}}/describe">API reference</a>.</p>
</body>
</html>{{end}}
`))

type pageParam struct {
	Name    string
	Type    string
	Default string
	Doc     string
}

type pageMethod struct {
	MethodDescription
	Params []pageParam
}

type pageData struct {
	Title    string
	Service  string
	ServerID string
	Prefix   string
	Methods  []pageMethod
}

func (h *HttpServer) pageData(title string) pageData {
	service := h.server.protocolName()
	data := pageData{
		Title:    service + " " + title,
		Service:  service,
		ServerID: h.server.ServerID(),
		Prefix:   h.prefix,
	}
	for _, d := range h.server.describeMethods() {
		m := pageMethod{MethodDescription: d}
		for name, typ := range d.ParamTypes {
			p := pageParam{Name: name, Type: typ, Doc: d.ParamDocs[name]}
			if v, ok := d.ParamDefaults[name]; ok {
				js, _ := json.Marshal(v)
				p.Default = string(js)
			}
			m.Params = append(m.Params, p)
		}
		sort.Slice(m.Params, func(i, j int) bool { return m.Params[i].Name < m.Params[j].Name })
		data.Methods = append(data.Methods, m)
	}
	return data
}

func (h *HttpServer) writePage(w http.ResponseWriter, status int, name, title string) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, h.pageData(title)); err != nil {
		h.server.logger.Error("http: rendering page", "page", name, "err", err)
		http.Error(w, "rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *HttpServer) handleLandingPage(w http.ResponseWriter, _ *http.Request) {
	h.writePage(w, http.StatusOK, "landing", "- vgi_rpc")
}

func (h *HttpServer) handleDescribePage(w http.ResponseWriter, _ *http.Request) {
	h.writePage(w, http.StatusOK, "describe", "API reference")
}

func (h *HttpServer) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	h.writePage(w, http.StatusNotFound, "notfound", "- not found")
}
