package pipeline

import (
	"context"

	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/subtitle"
	"videotrans/pkg/util"
)

// Recognize turns the prepared audio into the source-language subtitle. When
// a source subtitle file already exists (user-supplied or from an earlier
// run) the provider call is skipped and the file is parsed as-is.
func (p *PipelineTask) Recognize(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	t.SetState(types.StateRecognizing)

	if util.FileExists(t.SourceSubtitlePath()) {
		entries, err := subtitle.ParseFile(t.SourceSubtitlePath())
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRecognizeFailed, "字幕文件解析失败 Subtitle file parse failed", err)
		}
		if len(entries) == 0 {
			return apperrors.New(apperrors.CodeEmptyRecognition, "字幕文件为空 Subtitle file is empty")
		}
		p.sourceEntries = entries
		log.GetLogger().Info("existing subtitle reused",
			zap.String("taskId", t.Uuid), zap.Int("lines", len(entries)))
		p.reportProgress(30, "字幕已就绪 Subtitle ready")
		return p.maybeFinishExtractOnly(false)
	}

	p.reportProgress(12, "正在识别语音 Recognizing speech...")
	entries, err := p.Collab.Recognizer.Recognize(ctx, t.RecognitionAudioPath(), t.Config.SourceLanguage)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRecognizeFailed, "语音识别失败 Recognition failed", err)
	}
	if len(entries) == 0 {
		return apperrors.New(apperrors.CodeEmptyRecognition, "识别结果为空 Empty recognition result")
	}
	if err := subtitle.WriteFile(t.SourceSubtitlePath(), entries); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "字幕写入失败 Subtitle write failed", err)
	}
	p.sourceEntries = entries

	log.GetLogger().Info("recognition finished",
		zap.String("taskId", t.Uuid), zap.Int("lines", len(entries)))
	p.reportProgress(30, "识别完成 Recognition done")
	return p.maybeFinishExtractOnly(false)
}

// maybeFinishExtractOnly ends an extract-only task as soon as its last useful
// artifact exists: after recognition when there is no translation target, or
// after translation otherwise.
func (p *PipelineTask) maybeFinishExtractOnly(translated bool) error {
	t := p.Task
	if t.Config.AppMode != types.AppModeExtractOnly {
		return nil
	}
	if t.Config.ShouldTranslate() && !translated {
		return nil
	}
	return p.finishSubtitlesOnly()
}
