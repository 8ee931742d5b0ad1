package loopback

import "html/template"

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 4em auto; max-width: 36em; color: #222; }
h1 { font-size: 1.4em; }
.error { color: #b00020; }
</style>
</head>
<body>
{{if .Error}}
<h1 class="error">Authentication failed</h1>
<p><strong>{{.Error}}</strong></p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{else}}
<h1>Authentication complete</h1>
<p>You can close this window and return to the terminal.</p>
{{end}}
</body>
</html>
`))

// fragmentPage posts the URL fragment back to the server, which cannot see
// it otherwise.
var fragmentPage = template.Must(template.New("fragment").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Completing sign-in</title>
</head>
<body>
<p id="status">Completing sign-in&hellip;</p>
<script>
(function () {
  var fragment = window.location.hash.substring(1);
  var status = document.getElementById("status");
  if (!fragment) {
    status.textContent = "The sign-in response did not contain any parameters.";
    return;
  }
  fetch({{.Path}}, { method: "POST", headers: { "Content-Type": "text/plain" }, body: fragment })
    .then(function () {
      history.replaceState(null, "", window.location.pathname);
      status.textContent = "Authentication complete. You can close this window.";
    })
    .catch(function () {
      status.textContent = "Could not complete sign-in.";
    });
})();
</script>
</body>
</html>
`))
