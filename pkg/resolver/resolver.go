// Package resolver turns user queries into playable track descriptors and
// downloads their payloads. YouTube sources go through the kkdai/youtube
// client with a yt-dlp subprocess as the fallback extraction strategy; other
// URLs pass through as direct, non-cacheable streams.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/pkg/player"
)

// YouTubeResolver implements the player.Resolver and mediacache.Downloader
// capabilities.
type YouTubeResolver struct {
	client youtube.Client
	log    *logrus.Entry
}

// New creates a resolver.
func New(log *logrus.Entry) *YouTubeResolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &YouTubeResolver{log: log.WithField("component", "resolver")}
}

// Resolve turns a URL or free-text query into a track descriptor. Playlists
// collapse to their first entry.
func (r *YouTubeResolver) Resolve(ctx context.Context, query string) (*player.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, player.NewResolveError(errors.New("empty query"))
	}

	if !isURL(query) {
		watchURL, err := r.searchFirst(ctx, query)
		if err != nil {
			return nil, player.NewResolveError(err)
		}
		t, err := r.resolveYouTube(ctx, watchURL)
		if err != nil {
			return nil, err
		}
		t.OriginalQuery = query
		return t, nil
	}

	if isYouTubeURL(query) {
		return r.resolveYouTube(ctx, query)
	}

	// Non-YouTube URLs stream directly and are not cached.
	t := player.NewTrack(query, query, "", query)
	return t, nil
}

func (r *YouTubeResolver) resolveYouTube(ctx context.Context, url string) (*player.Track, error) {
	videoID, err := youtube.ExtractVideoID(url)
	if err != nil {
		return nil, player.NewResolveError(errors.Wrap(err, "extracting video id"))
	}

	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		// The library trips over some videos the subprocess handles fine.
		title, duration, dlpErr := r.metadataViaYTDLP(ctx, url)
		if dlpErr != nil {
			return nil, player.NewResolveError(errors.Wrapf(err, "resolving %s", videoID))
		}
		t := player.NewTrack(title, watchURL(videoID), videoID, url)
		t.Duration = duration
		return t, nil
	}

	t := player.NewTrack(video.Title, watchURL(videoID), videoID, url)
	t.Duration = video.Duration
	return t, nil
}

// Download fetches the audio payload for sourceRef into destPath. Safe to
// call when the destination already exists. Implements the cache's Downloader
// capability.
func (r *YouTubeResolver) Download(ctx context.Context, sourceRef, destPath string) error {
	if fi, err := os.Stat(destPath); err == nil && fi.Size() > 0 {
		return nil
	}

	if err := r.downloadViaClient(ctx, sourceRef, destPath); err != nil {
		r.log.WithError(err).WithField("source", sourceRef).Debug("Client download failed, falling back to yt-dlp")
		return r.downloadViaYTDLP(ctx, sourceRef, destPath)
	}
	return nil
}

func (r *YouTubeResolver) downloadViaClient(ctx context.Context, sourceRef, destPath string) error {
	videoID, err := youtube.ExtractVideoID(sourceRef)
	if err != nil {
		return errors.Wrap(err, "extracting video id")
	}
	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return errors.Wrap(err, "fetching video info")
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		return errors.New("no audio formats available")
	}
	formats.Sort()

	stream, _, err := r.client.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return errors.Wrap(err, "opening stream")
	}
	defer stream.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return errors.Wrap(err, "creating destination")
	}
	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		os.Remove(destPath)
		return errors.Wrap(err, "copying stream")
	}
	return f.Close()
}

// downloadViaYTDLP shells out with the same strategy order the stream
// acquisition path has always used: format preference first, android client,
// then anything that plays.
func (r *YouTubeResolver) downloadViaYTDLP(ctx context.Context, sourceRef, destPath string) error {
	strategies := [][]string{
		{"-f", "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"},
		{"-f", "bestaudio", "--extractor-args", "youtube:player_client=android"},
		{"-f", "worst[ext=m4a]/worst"},
	}

	var lastErr error
	for i, strategy := range strategies {
		args := append([]string{"--no-playlist", "--no-warnings", "-o", destPath}, strategy...)
		args = append(args, sourceRef)

		cmd := exec.CommandContext(ctx, "yt-dlp", args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			lastErr = errors.Wrapf(err, "yt-dlp strategy %d: %s", i+1, strings.TrimSpace(stderr.String()))
			continue
		}
		if fi, err := os.Stat(destPath); err == nil && fi.Size() > 0 {
			return nil
		}
		lastErr = errors.Errorf("yt-dlp strategy %d produced no output", i+1)
	}
	return lastErr
}

// searchFirst resolves a free-text query to the first search result's URL.
func (r *YouTubeResolver) searchFirst(ctx context.Context, query string) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--no-playlist",
		"--no-warnings",
		"--print", "webpage_url",
		"ytsearch1:"+query)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	url := strings.TrimSpace(strings.SplitN(out.String(), "\n", 2)[0])
	if url == "" {
		if runErr != nil {
			return "", errors.Wrapf(runErr, "search failed: %s", strings.TrimSpace(stderr.String()))
		}
		return "", errors.Errorf("no results for %q", query)
	}
	return url, nil
}

// metadataViaYTDLP extracts title and duration through the subprocess.
func (r *YouTubeResolver) metadataViaYTDLP(ctx context.Context, url string) (string, time.Duration, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--no-playlist",
		"--no-warnings",
		"--print", "title",
		"--print", "duration",
		url)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", 0, errors.Wrap(err, "extracting metadata")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	title := "Unknown Title"
	var duration time.Duration
	if len(lines) >= 1 && strings.TrimSpace(lines[0]) != "" {
		title = strings.TrimSpace(lines[0])
	}
	if len(lines) >= 2 {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64); err == nil {
			duration = time.Duration(secs * float64(time.Second))
		}
	}
	return title, duration, nil
}

func watchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.") || isYouTubeURL(s)
}

func isYouTubeURL(s string) bool {
	return strings.Contains(s, "youtube.com") || strings.Contains(s, "youtu.be")
}
