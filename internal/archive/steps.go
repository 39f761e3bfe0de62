package archive

import (
	"context"
	"fmt"
	"math"
	"os"

	"teslabox/internal/camera"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/fileutil"
	"teslabox/internal/logging"
	"teslabox/internal/scenes"
	"teslabox/internal/services"
	"teslabox/internal/storage"
)

// lastClipSecond bounds scene seconds to a one-minute recorder clip.
const lastClipSecond = 59

// render produces one segment per clip timestamp. Timestamps already cached
// are skipped, so a retry resumes with the first unrendered one.
func (p *Pipeline) render(ctx context.Context, job Job) (Job, error) {
	if job.Files == nil {
		job.Files = make(map[string]string)
	}
	if job.Caches == nil {
		job.Caches = make(map[int64]bool)
	}
	for _, ts := range job.Timestamps() {
		if job.Caches[ts] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return job, err
		}
		clips, ok := job.clips(ts)
		if !ok {
			return job, services.Wrap(services.ErrValidation, "archive", "render", fmt.Sprintf("missing files for timestamp %d", ts), nil)
		}
		output, ok := job.Files[segmentKey(ts)]
		if !ok {
			output = p.tempPath(".mp4")
			job.Files[segmentKey(ts)] = output
		}

		var err error
		if job.Condensed {
			err = p.renderCondensed(ctx, &job, ts, clips, output)
		} else {
			err = p.renderQuad(ctx, job, ts, clips, output)
		}
		if err != nil {
			return job, err
		}

		job.Caches[ts] = true
		consumed := make([]string, 0, 2*len(clips))
		for angle, clip := range clips {
			consumed = append(consumed, clip.File)
			if log, ok := job.Files[logKey(ts, angle)]; ok {
				consumed = append(consumed, log)
				delete(job.Files, logKey(ts, angle))
			}
		}
		if err := fileutil.RemoveAll(consumed...); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "consumed clips not removed", "cleanup_failed",
				logging.Error(err),
				logging.Int64("timestamp", ts),
				logging.String(logging.FieldImpact, "ram disk space is not reclaimed until the job ends"),
			)
		}
	}
	job.Step = 2
	return job, nil
}

func (p *Pipeline) encode(job Job) ffmpeg.Encode {
	return ffmpeg.Encode{
		Preset:    p.cfg.Archive.Preset,
		CRF:       CRFs.CRF(job.Quality),
		FrameRate: ffmpeg.ArchiveFrameRate,
	}
}

func (p *Pipeline) renderQuad(ctx context.Context, job Job, ts int64, clips map[camera.Angle]TempFile, output string) error {
	front := clips[camera.Front]
	label := job.Event.Type.Title()
	if job.Event.Type.IsSentry() {
		label += " (" + job.Event.Angle.Title() + ")"
	}
	files := make(map[camera.Angle]string, len(clips))
	for angle, clip := range clips {
		files[angle] = clip.File
	}
	args := ffmpeg.Quad(ffmpeg.QuadParams{
		IconFile:  p.cfg.Paths.IconFile,
		FontFile:  p.cfg.Paths.FontFile,
		Files:     files,
		Start:     front.Start,
		Duration:  front.Duration,
		Large:     job.Event.Angle,
		HWVersion: job.HWVersion,
		Caption:   ffmpeg.Caption(job.CarName, label, float64(ts)+front.Start),
		Encode:    p.encode(job),
		Output:    output,
	})
	return p.deps.Invoker.Run(ctx, args)
}

// renderCondensed scores every angle's clip, picks the camera to show for each
// second and cuts those scenes into one segment.
func (p *Pipeline) renderCondensed(ctx context.Context, job *Job, ts int64, clips map[camera.Angle]TempFile, output string) error {
	front := clips[camera.Front]
	windowStart := int(math.Floor(front.Start))
	windowEnd := int(math.Ceil(front.Start + front.Duration))
	lastSecond := min(windowEnd-1, lastClipSecond)

	sets := make([][]scenes.Triple, 0, len(clips))
	for _, angle := range camera.Angles() {
		clip := clips[angle]
		logFile, ok := job.Files[logKey(ts, angle)]
		if !ok {
			logFile = p.tempPath(".log")
			job.Files[logKey(ts, angle)] = logFile
		}
		args := ffmpeg.SceneDetect(ffmpeg.SceneDetectParams{
			Input:        clip.File,
			Start:        clip.Start,
			Duration:     clip.Duration,
			EveryNFrames: p.cfg.Archive.CinematicFrames,
			LogFile:      logFile,
		})
		if err := p.deps.Invoker.Run(ctx, args); err != nil {
			return err
		}
		triples, err := readSceneLog(logFile, angle, int(clip.Start), lastSecond)
		if err != nil {
			return err
		}
		sets = append(sets, triples)
	}

	triples := scenes.MarkEvent(scenes.Merge(sets...), job.Event.Angle, int(job.Event.Timestamp-ts))
	selected := scenes.Select(triples, scenes.Options{
		MinDuration: p.cfg.Archive.CinematicDuration,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Fallback:    job.Event.Angle,
	})
	segments := make([]ffmpeg.Segment, 0, len(selected))
	for _, scene := range selected {
		segments = append(segments, ffmpeg.Segment{
			Angle:    scene.Angle,
			File:     clips[scene.Angle].File,
			Start:    float64(scene.Start),
			Duration: float64(scene.Duration),
		})
	}
	logging.WithContext(ctx, p.logger).Debug("scenes selected",
		logging.Int64("timestamp", ts),
		logging.Int("scenes", len(segments)),
	)

	args := ffmpeg.Condensed(ffmpeg.CondensedParams{
		IconFile:  p.cfg.Paths.IconFile,
		FontFile:  p.cfg.Paths.FontFile,
		Segments:  segments,
		HWVersion: job.HWVersion,
		Caption:   ffmpeg.Caption(job.CarName, job.Event.Type.Title(), float64(ts)+front.Start),
		Encode:    p.encode(*job),
		Output:    output,
	})
	return p.deps.Invoker.Run(ctx, args)
}

func readSceneLog(path string, angle camera.Angle, offset, lastSecond int) ([]scenes.Triple, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene log: %w", err)
	}
	defer file.Close()
	triples, err := scenes.ParseLog(file, angle, offset, lastSecond)
	if err != nil {
		return nil, fmt.Errorf("parse scene log %s: %w", path, err)
	}
	return triples, nil
}

// writeManifest lists the rendered segments in timestamp order.
func (p *Pipeline) writeManifest(_ context.Context, job Job) (Job, error) {
	timestamps := job.Timestamps()
	segments := make([]string, 0, len(timestamps))
	for _, ts := range timestamps {
		segments = append(segments, job.Files[segmentKey(ts)])
	}
	if err := os.WriteFile(job.ChaptersFile, []byte(ffmpeg.Manifest(segments)), 0o644); err != nil {
		return job, fmt.Errorf("write chapters: %w", err)
	}
	job.Step = 3
	return job, nil
}

func (p *Pipeline) concat(ctx context.Context, job Job) (Job, error) {
	if err := p.deps.Invoker.Run(ctx, ffmpeg.ConcatFiles(job.ChaptersFile, job.ConcatFile)); err != nil {
		return job, err
	}
	leftovers := []string{job.ChaptersFile}
	for _, ts := range job.Timestamps() {
		leftovers = append(leftovers, job.Files[segmentKey(ts)])
		delete(job.Files, segmentKey(ts))
	}
	p.removeQuietly(ctx, leftovers...)
	job.Step = 4
	return job, nil
}

func (p *Pipeline) silence(ctx context.Context, job Job) (Job, error) {
	if err := p.deps.Invoker.Run(ctx, ffmpeg.Silence(job.ConcatFile, job.OutFile)); err != nil {
		return job, err
	}
	p.removeQuietly(ctx, job.ConcatFile)
	job.Step = 5
	return job, nil
}

// publish uploads the finished archive once connectivity is back.
func (p *Pipeline) publish(ctx context.Context, job Job) (Job, error) {
	if !p.deps.Oracle.IsAlive() {
		return job, services.Wrap(services.ErrNoConnection, "archive", "upload", "liveness probe reports offline", nil)
	}
	data, err := os.ReadFile(job.OutFile)
	if err != nil {
		return job, fmt.Errorf("read archive: %w", err)
	}
	if err := p.deps.Store.PutObject(ctx, job.OutKey, data, storage.ContentTypeMP4); err != nil {
		return job, err
	}
	p.removeQuietly(ctx, job.OutFile)
	job.Step = 6
	return job, nil
}

func (p *Pipeline) link(ctx context.Context, job Job) (Job, error) {
	url, err := p.deps.Store.SignedURL(ctx, job.OutKey, p.cfg.SignedExpiry())
	if err != nil {
		return job, err
	}
	job.VideoURL = url
	job.Step = 7
	return job, nil
}

func (p *Pipeline) removeQuietly(ctx context.Context, paths ...string) {
	if err := fileutil.RemoveAll(paths...); err != nil {
		logging.WithContext(ctx, p.logger).Debug("intermediate cleanup failed", logging.Error(err))
	}
}
