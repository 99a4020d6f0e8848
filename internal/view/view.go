// Package view holds the HTML templates of the connect pages.
package view

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var files embed.FS

// Parse returns every page template, named after its file.
func Parse() (*template.Template, error) {
	return template.New("").ParseFS(files, "templates/*.html")
}

// Load installs the templates on engine for c.HTML.
func Load(engine *gin.Engine) error {
	t, err := Parse()
	if err != nil {
		return err
	}
	engine.SetHTMLTemplate(t)
	return nil
}
