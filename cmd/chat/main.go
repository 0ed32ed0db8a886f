// Terminal client for the Athena gateway. Drives the same session
// protocol as the browser widget: attach files, send turns, keep the
// active document ids across turns, clear them to start a new case.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"athena/internal/session"
	"athena/internal/turn"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "gateway base URL")
	lang := flag.String("lang", "el", "response language (el or en)")
	flag.Parse()

	sess := session.New(*lang)
	client := &http.Client{Timeout: 90 * time.Second}

	fmt.Println("Athena chat. Commands: /attach <file>, /clear, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return
		case line == "/clear":
			sess.ClearDocuments()
			fmt.Println("Cleared active documents. Attach a new file to start a new case.")
			continue
		case strings.HasPrefix(line, "/attach "):
			attach(sess, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
			continue
		}

		req, err := sess.ComposeTurn(line)
		if err != nil {
			fmt.Println(err)
			continue
		}

		resp, err := postTurn(client, *server, req)
		if err != nil {
			sess.OnTurnFailure()
			fmt.Println("Error:", err)
			continue
		}
		sess.OnTurnSuccess(resp)

		fmt.Println(resp.Reply)
		if resp.Truncated {
			fmt.Println("(the answer was cut short; send an empty message to continue)")
		}
		if n := len(resp.Handles); n > 0 {
			fmt.Printf("[%d document(s) active]\n", n)
		}
	}
}

func attach(sess *session.Session, path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Println("Cannot attach:", err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("Cannot attach:", err)
		return
	}

	added := sess.AddFiles(session.PendingFile{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		MIME:    mimeForFile(path),
		Data:    data,
	})
	if added == 0 {
		fmt.Println("Already attached.")
		return
	}
	fmt.Printf("Attached %s (%d KB), %d file(s) pending upload.\n",
		filepath.Base(path), info.Size()>>10, sess.PendingCount())
}

func mimeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// postTurn sends one composed turn as multipart form data, the same shape
// the widget sends.
func postTurn(client *http.Client, server string, req *turn.Request) (*turn.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	_ = mw.WriteField("message", req.Message)
	_ = mw.WriteField("lang", req.Lang)
	if len(req.Handles) > 0 {
		ids, _ := json.Marshal(req.Handles)
		_ = mw.WriteField("file_ids", string(ids))
	}
	for _, f := range req.NewFiles {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		h.Set("Content-Type", f.MIME)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest("POST", strings.TrimSuffix(server, "/")+"/athena", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s", e.Error)
		}
		return nil, fmt.Errorf("server returned %d", httpResp.StatusCode)
	}

	var out struct {
		Reply     string   `json:"reply"`
		FileIDs   []string `json:"file_ids"`
		Truncated bool     `json:"truncated"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("bad response from server: %w", err)
	}
	if out.Reply == "" {
		return nil, fmt.Errorf("server returned no reply")
	}

	return &turn.Response{
		Reply:     out.Reply,
		Handles:   out.FileIDs,
		Truncated: out.Truncated,
	}, nil
}
