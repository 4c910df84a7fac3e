package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

// GetStartedURL is where the call to action sends visitors.
const GetStartedURL = "https://www.docker.com/get-started"

// SplashImage is the hero image rendered at the top of the home page.
const SplashImage = "/images/docker-splash-2.jpg"

//go:embed templates/home.html
var templateFS embed.FS

var homeTemplate = template.Must(template.ParseFS(templateFS, "templates/home.html"))

type homePage struct {
	SplashImage   string
	GetStartedURL string
	Version       string
}

// HandleHome renders the portal page. The fruit stand and employee list
// widgets fetch their own data from the API after load.
func (s *Server) HandleHome(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := homeTemplate.Execute(&buf, homePage{
		SplashImage:   SplashImage,
		GetStartedURL: GetStartedURL,
		Version:       s.cfg.Build.Version,
	})
	if err != nil {
		Error("render home page", map[string]interface{}{"rid": RequestIDFromContext(r.Context())}, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	GetMetrics().RecordPageRender()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleGetStarted sends the browser on to GetStartedURL. It backs the
// call to action when scripting is unavailable.
func HandleGetStarted(w http.ResponseWriter, r *http.Request) {
	GetMetrics().RecordGetStarted()
	http.Redirect(w, r, GetStartedURL, http.StatusFound)
}
