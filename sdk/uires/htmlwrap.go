package uires

import "strings"

// commScript is the bootstrap injected into raw HTML so the page can talk
// to its host without shipping its own glue.
const commScript = `
(function() {
    window.mcpUI = {
        postMessage: function(data) {
            if (window.parent) {
                window.parent.postMessage(data, '*');
            }
        },
        onMessage: function(callback) {
            window.addEventListener('message', function(event) {
                callback(event.data);
            });
        }
    };
})();
`

// CommunicationScript returns the JavaScript bootstrap a surface page can
// use to exchange messages with its host.
func CommunicationScript() string { return commScript }

// WrapHTML injects the communication bootstrap into raw HTML content. The
// script goes into an existing <head> when there is one, otherwise the
// content is wrapped in a minimal document.
func WrapHTML(htmlContent string) string {
	script := "<script>" + commScript + "</script>"
	if strings.Contains(htmlContent, "<head>") {
		return strings.Replace(htmlContent, "<head>", "<head>"+script, 1)
	}
	if strings.Contains(htmlContent, "<html>") {
		return strings.Replace(htmlContent, "<html>", "<html><head>"+script+"</head>", 1)
	}
	return "<!DOCTYPE html>\n<html>\n<head>\n    " + script + "\n</head>\n<body>\n" + htmlContent + "\n</body>\n</html>"
}
