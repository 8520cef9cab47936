package httpapi

import "html/template"

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>mdconv</title>
<style>
body { max-width: 40rem; margin: 3rem auto; font-family: sans-serif; }
fieldset { border: 1px solid #ccc; padding: 1rem; }
</style>
</head>
<body>
<h1>Convert a document to Markdown</h1>
<form action="/api/upload" method="post" enctype="multipart/form-data">
<fieldset>
<p><input type="file" name="file" required></p>
<p><label>Type
<select name="doc_type">
<option value="">detect from extension</option>
{{- range .DocTypes}}
<option value="{{.}}">{{.}}</option>
{{- end}}
</select></label></p>
<p><button type="submit">Upload</button></p>
</fieldset>
</form>
<p>Accepted: {{range $i, $f := .Formats}}{{if $i}}, {{end}}.{{$f}}{{end}}</p>
<p>Poll <code>/api/status/{id}</code>, then fetch <code>/api/markdown/{id}</code> or open <code>/api/preview/{id}</code>.</p>
</body>
</html>
`))
