package analysis

import "trafficlens/internal/sampler"

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// firstText returns candidates[0].content.parts[0].text or "".
func (r generateResponse) firstText() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

func buildRequest(req Request) generateRequest {
	parts := make([]part, 0, len(req.Frames)+1)
	parts = append(parts, part{Text: BuildPrompt(req.SourceLabel)})
	for _, frame := range req.Frames {
		mime := frame.MIMEType
		if mime == "" {
			mime = sampler.JPEGMIMEType
		}
		parts = append(parts, part{InlineData: &inlineData{MIMEType: mime, Data: frame.Base64()}})
	}
	return generateRequest{Contents: []content{{Parts: parts}}}
}
