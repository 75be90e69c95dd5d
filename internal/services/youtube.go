package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
)

const (
	browserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxCaptionPageLen = 8 << 20
)

var transcriptLanguages = []string{"en", "en-US", "en-GB"}

// YouTubeService turns a video link into source text for generation.
type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
}

func NewYouTubeService() *YouTubeService {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &YouTubeService{
		httpClient:    httpClient,
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{HTTPClient: httpClient},
	}
}

// VideoID accepts a watch URL, short URL or bare id.
func (s *YouTubeService) VideoID(videoURL string) (string, error) {
	id, err := yt.ExtractVideoID(videoURL)
	if err != nil {
		return "", fmt.Errorf("invalid YouTube URL: %w", err)
	}
	return id, nil
}

// Fetch resolves a video's title and transcript. A missing title is not an
// error; a missing transcript is.
func (s *YouTubeService) Fetch(ctx context.Context, videoURL string) (title, transcript string, err error) {
	videoID, err := s.VideoID(videoURL)
	if err != nil {
		return "", "", err
	}

	transcript, err = s.Transcript(ctx, videoID)
	if err != nil {
		return "", "", err
	}

	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err != nil {
		log.Printf("YouTube metadata unavailable for %s: %v", videoID, err)
		return "", transcript, nil
	}
	return strings.TrimSpace(video.Title), transcript, nil
}

// Transcript prefers English captions, then any language, then the captions
// linked from the watch page.
func (s *YouTubeService) Transcript(ctx context.Context, videoID string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, transcriptLanguages)
	if err != nil {
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
	}
	if err != nil {
		text, pageErr := s.transcriptFromWatchPage(ctx, videoID)
		if pageErr != nil {
			return "", fmt.Errorf("no subtitles available via transcript API (%v) and watch page fallback failed (%v)", err, pageErr)
		}
		return text, nil
	}

	lines := make([]string, 0, len(transcript.Entries))
	for _, entry := range transcript.Entries {
		lines = append(lines, entry.Text)
	}
	text := joinCaptionLines(lines)
	if text == "" {
		return "", fmt.Errorf("subtitle track is empty")
	}
	return text, nil
}

func (s *YouTubeService) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCaptionPageLen))
}

func (s *YouTubeService) transcriptFromWatchPage(ctx context.Context, videoID string) (string, error) {
	page, err := s.get(ctx, "https://www.youtube.com/watch?v="+videoID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch YouTube page: %w", err)
	}
	verboseLog("Watch page fallback: fetched %s (%d bytes)", videoID, len(page))

	captionURL, err := extractCaptionURL(string(page))
	if err != nil {
		return "", err
	}

	captions, err := s.get(ctx, captionURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}

	text, err := parseCaptionsXML(captions)
	if err != nil {
		return "", fmt.Errorf("failed to parse captions XML: %w", err)
	}
	return text, nil
}

var (
	captionTracksPattern   = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	captionRendererPattern = regexp.MustCompile(`"playerCaptionsTracklistRenderer"\s*:\s*\{(?:.*?,)?\s*"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	captionBaseURLPattern  = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
	jsonURLEscapes         = strings.NewReplacer(`\u0026`, "&", `\/`, "/")
)

func extractCaptionURL(pageHTML string) (string, error) {
	tracks := captionTracksPattern.FindStringSubmatch(pageHTML)
	if len(tracks) < 2 {
		tracks = captionRendererPattern.FindStringSubmatch(pageHTML)
	}
	if len(tracks) < 2 {
		return "", fmt.Errorf("no captions available for this video")
	}

	base := captionBaseURLPattern.FindStringSubmatch(tracks[1])
	if len(base) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}
	return jsonURLEscapes.Replace(base[1]), nil
}

type timedText struct {
	XMLName xml.Name `xml:"transcript"`
	Lines   []string `xml:"text"`
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", err
	}

	text := joinCaptionLines(tt.Lines)
	if text == "" {
		return "", fmt.Errorf("captions XML empty")
	}
	return text, nil
}

func joinCaptionLines(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(html.UnescapeString(l)); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}
