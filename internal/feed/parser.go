package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
)

// Options controls the optional-field and sanitization policies
// described in spec §4.B.
type Options struct {
	StrictMode   bool
	CleanHTML    bool
	ValidateURLs bool
}

// Parser is a streaming RSS 2.0 / Atom 1.0 reader. It never buffers
// the whole document into a DOM; it walks encoding/xml tokens one at
// a time, tracking an element path and dispatching by path suffix.
// Parser holds no per-parse state, so a single instance is safe to
// reuse (and to share) across goroutines.
type Parser struct {
	opts Options
}

func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

// itunesNamespaceURI is the canonical iTunes podcast namespace. Many
// feeds in the wild use the itunes: prefix without ever declaring it,
// in which case encoding/xml leaves Name.Space as the literal prefix
// "itunes" rather than a resolved URI; state.isItunes handles both.
const itunesNamespaceURI = "http://www.itunes.com/dtds/podcast-1.0.dtd"

// atomNamespaceURI is the namespace Atom feeds normally declare as
// their default, binding every element in the document, so it needs
// the same "no prefix" treatment as an RSS document's empty namespace.
const atomNamespaceURI = "http://www.w3.org/2005/Atom"

type parseState struct {
	opts Options

	path []string

	mode Mode
	feed PodcastFeed

	curContainer string // "", "channel", "item", "entry"
	curEpisode   *Episode
	guidSeen     map[string]bool

	inChannelImage bool
	textBuf        strings.Builder
	captureText    bool

	unknownTags map[string]int
}

// Parse parses feed bytes into a ParseResult. It never panics on
// malformed input: XML-level errors surface as errs.ParseError with
// Kind InvalidXML.
func (p *Parser) Parse(data []byte) (*ParseResult, error) {
	st := &parseState{
		opts:        p.opts,
		guidSeen:    make(map[string]bool),
		unknownTags: make(map[string]int),
	}

	dec := xml.NewDecoder(decodeReader(data))
	dec.Strict = false
	// decodeReader has already transcoded UTF-16 input to UTF-8, so a
	// UTF-16 label in the XML declaration needs no further conversion.
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if strings.HasPrefix(strings.ToLower(label), "utf-16") {
			return input, nil
		}
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.NewParseError(errs.InvalidXML, "", fmt.Sprintf("malformed XML: %v", err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if perr := st.handleStart(t); perr != nil {
				return nil, perr
			}
		case xml.EndElement:
			if perr := st.handleEnd(t); perr != nil {
				return nil, perr
			}
		case xml.CharData:
			if st.captureText {
				st.textBuf.Write(t)
			}
		}
	}

	if st.mode == ModeUnknown {
		return nil, errs.NewParseError(errs.InvalidRSS, "", "no recognized rss/channel or feed root found")
	}

	title := strings.TrimSpace(st.feed.Title)
	if title == "" {
		if st.opts.StrictMode {
			return nil, errs.NewParseError(errs.MissingField, "title", "feed title is required")
		}
	}
	st.feed.Title = title

	return &ParseResult{Feed: st.feed, Mode: st.mode, UnknownTags: st.unknownTags}, nil
}

// qualifiedLocal maps a decoded element name to the path segment the
// dispatch switches below key on. Namespaces the parser understands
// (itunes, and an Atom document's own default namespace) collapse to
// the bare local name; anything else keeps its prefix so unrecognized
// extension elements are tracked under a stable, informative key.
func (st *parseState) qualifiedLocal(name xml.Name) string {
	switch {
	case st.isItunes(name.Space):
		return "itunes:" + name.Local
	case name.Space == "" || name.Space == atomNamespaceURI:
		return name.Local
	default:
		return name.Space + ":" + name.Local
	}
}

func (st *parseState) isItunes(space string) bool {
	if space == "" {
		return false
	}
	return space == itunesNamespaceURI || space == "itunes" || strings.Contains(strings.ToLower(space), "itunes")
}

func (st *parseState) handleStart(t xml.StartElement) error {
	tag := st.qualifiedLocal(t.Name)
	st.path = append(st.path, tag)

	switch {
	case st.mode == ModeUnknown && tag == "rss":
		// root seen, wait for channel
	case st.mode == ModeUnknown && tag == "channel" && len(st.path) == 2 && st.path[0] == "rss":
		st.mode = ModeRSS
		st.curContainer = "channel"
	case st.mode == ModeUnknown && tag == "feed":
		st.mode = ModeAtom
		st.curContainer = "channel" // Atom <feed> plays the role of <channel>

	case tag == "item" && st.mode == ModeRSS:
		st.curContainer = "item"
		st.curEpisode = &Episode{}
	case tag == "entry" && st.mode == ModeAtom:
		st.curContainer = "entry"
		st.curEpisode = &Episode{}

	case tag == "image" && st.curContainer == "channel" && st.curEpisode == nil:
		st.inChannelImage = true

	case tag == "enclosure" && st.curEpisode != nil && st.mode == ModeRSS:
		for _, a := range t.Attr {
			if a.Name.Local == "url" {
				st.curEpisode.AudioURL = a.Value
			}
		}

	case tag == "link" && st.curEpisode != nil && st.mode == ModeAtom:
		var rel, href string
		for _, a := range t.Attr {
			switch a.Name.Local {
			case "rel":
				rel = a.Value
			case "href":
				href = a.Value
			}
		}
		if rel == "enclosure" {
			st.curEpisode.AudioURL = href
		}

	case tag == "link" && st.curContainer == "channel" && st.curEpisode == nil && st.mode == ModeAtom:
		var rel, href string
		for _, a := range t.Attr {
			switch a.Name.Local {
			case "rel":
				rel = a.Value
			case "href":
				href = a.Value
			}
		}
		if (rel == "" || rel == "alternate") && st.feed.Link == "" {
			st.feed.Link = href
		}

	case tag == "itunes:image":
		var href string
		for _, a := range t.Attr {
			if a.Name.Local == "href" {
				href = a.Value
			}
		}
		if st.curEpisode != nil {
			st.curEpisode.Image = href
		} else if st.curContainer == "channel" && st.feed.Image == "" {
			st.feed.Image = href
		}

	case tag == "itunes:category":
		var text string
		for _, a := range t.Attr {
			if a.Name.Local == "text" {
				text = a.Value
			}
		}
		if text != "" && st.curEpisode == nil {
			st.feed.Categories = append(st.feed.Categories, text)
		}

	default:
		if st.isTextLeaf(tag) {
			st.captureText = true
			st.textBuf.Reset()
		} else if !st.isKnownContainer(tag) {
			st.unknownTags[tag]++
		}
	}

	return nil
}

func (st *parseState) isKnownContainer(tag string) bool {
	switch tag {
	case "rss", "channel", "feed", "item", "entry", "image":
		return true
	default:
		return false
	}
}

func (st *parseState) isTextLeaf(tag string) bool {
	switch tag {
	case "title", "description", "subtitle", "itunes:summary", "itunes:author", "name", "language",
		"link", "category", "url", "guid", "id", "pubDate", "updated", "published",
		"summary", "content", "itunes:duration":
		return true
	default:
		return false
	}
}

func (st *parseState) handleEnd(t xml.EndElement) error {
	tag := st.qualifiedLocal(t.Name)
	text := ""
	if st.captureText {
		text = st.textBuf.String()
		st.captureText = false
	}

	switch {
	case tag == "image" && st.curContainer == "channel" && st.curEpisode == nil:
		st.inChannelImage = false

	case tag == "url" && st.inChannelImage:
		if st.feed.Image == "" {
			st.feed.Image = strings.TrimSpace(text)
		}

	case st.curEpisode != nil:
		st.applyEpisodeField(tag, text)
		if tag == "item" || tag == "entry" {
			if err := st.finalizeEpisode(); err != nil {
				return err
			}
			st.curEpisode = nil
			st.curContainer = "channel"
		}

	case st.curContainer == "channel":
		st.applyChannelField(tag, text)

	case tag == "rss" || tag == "channel" || tag == "feed":
		// no-op, structural close
	}

	if len(st.path) > 0 {
		st.path = st.path[:len(st.path)-1]
	}
	return nil
}

func (st *parseState) applyChannelField(tag, text string) {
	text = strings.TrimSpace(text)
	switch tag {
	case "title":
		st.feed.Title = text
	case "description", "subtitle", "itunes:summary":
		if st.feed.Description == "" {
			st.feed.Description = st.maybeSanitize(text)
		}
	case "itunes:author", "name":
		if st.feed.Author == "" {
			st.feed.Author = text
		}
	case "language":
		st.feed.Language = text
	case "link":
		if st.feed.Link == "" {
			st.feed.Link = text
		}
	case "category":
		if text != "" {
			st.feed.Categories = append(st.feed.Categories, text)
		}
	}
}

func (st *parseState) applyEpisodeField(tag, text string) {
	text = strings.TrimSpace(text)
	ep := st.curEpisode
	switch tag {
	case "title":
		ep.Title = text
	case "description", "summary", "content":
		if ep.Description == "" {
			ep.Description = st.maybeSanitize(text)
		}
	case "guid", "id":
		ep.GUID = text
	case "pubDate", "published":
		if t, ok := parseDate(text); ok {
			ep.PublishedAt = t
		}
	case "updated":
		if ep.PublishedAt.IsZero() {
			if t, ok := parseDate(text); ok {
				ep.PublishedAt = t
			}
		}
	case "itunes:duration":
		if d, ok := parseDuration(text); ok {
			ep.Duration = &d
		}
	}
}

func (st *parseState) maybeSanitize(s string) string {
	if st.opts.CleanHTML {
		return sanitizeHTML(s)
	}
	return s
}

// finalizeEpisode enforces the required-field and URL-validation
// policy for a single episode. In strict mode any violation fails the
// whole parse (errs.ParseError); in lenient mode the episode is simply
// dropped and parsing continues.
func (st *parseState) finalizeEpisode() error {
	ep := st.curEpisode

	missing := ""
	switch {
	case ep.GUID == "":
		missing = "guid"
	case ep.PublishedAt.IsZero():
		missing = "pubDate"
	case ep.AudioURL == "":
		missing = "enclosure.url"
	}

	if missing != "" {
		if st.opts.StrictMode {
			return errs.NewParseError(errs.MissingField, missing, "required episode field missing")
		}
		return nil // lenient: drop this episode
	}

	if st.guidSeen[ep.GUID] {
		if st.opts.StrictMode {
			return errs.NewParseError(errs.InvalidRSS, "guid", "duplicate guid within feed: "+ep.GUID)
		}
		return nil // lenient: drop the later duplicate
	}

	if st.opts.ValidateURLs {
		if !isAbsoluteHTTPURL(ep.AudioURL) {
			if st.opts.StrictMode {
				return errs.NewParseError(errs.InvalidFormat, "enclosure.url", "not an absolute http(s) URL: "+ep.AudioURL)
			}
			return nil
		}
		if ep.Image != "" && !isAbsoluteHTTPURL(ep.Image) {
			ep.Image = ""
		}
	}

	st.guidSeen[ep.GUID] = true
	st.feed.Episodes = append(st.feed.Episodes, *ep)
	return nil
}
