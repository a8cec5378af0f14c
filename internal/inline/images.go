package inline

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/lattiq/postcard/internal/core"
)

// embedImages rewrites embeddable <img src> values to cid: references and
// returns one inline attachment per distinct source.
func (in *Inliner) embedImages(doc *goquery.Document) []core.Attachment {
	var attachments []core.Attachment
	cids := make(map[string]string)

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "cid:") {
			return
		}

		if cid, ok := cids[src]; ok {
			s.SetAttr("src", "cid:"+cid)
			return
		}

		att, ok := in.loadImage(src, len(attachments)+1)
		if !ok {
			return
		}
		att.ContentID = uuid.NewString()
		att.Inline = true

		cids[src] = att.ContentID
		attachments = append(attachments, att)
		s.SetAttr("src", "cid:"+att.ContentID)
	})

	return attachments
}

func (in *Inliner) loadImage(src string, n int) (core.Attachment, bool) {
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		content, contentType, ok := decodeDataURI(src)
		if !ok {
			return core.Attachment{}, false
		}
		name := fmt.Sprintf("image-%d", n)
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			name += exts[0]
		}
		return core.Attachment{Filename: name, Content: content, ContentType: contentType}, true
	}

	content, ok := in.readLocal(src)
	if !ok {
		return core.Attachment{}, false
	}
	u, _ := url.Parse(src)
	name := path.Base(u.Path)
	return core.Attachment{
		Filename:    name,
		Content:     content,
		ContentType: core.ContentTypeByExt(path.Ext(name)),
	}, true
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, string, bool) {
	meta, data, found := strings.Cut(uri[len("data:"):], ",")
	if !found {
		return nil, "", false
	}

	isBase64 := false
	contentType := "text/plain"
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			contentType = strings.ToLower(part)
		case strings.EqualFold(part, "base64"):
			isBase64 = true
		}
	}

	if isBase64 {
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, "", false
		}
		return content, contentType, true
	}

	content, err := url.PathUnescape(data)
	if err != nil {
		return nil, "", false
	}
	return []byte(content), contentType, true
}
