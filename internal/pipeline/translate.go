package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/subtitle"
	"videotrans/pkg/util"
)

// Translate produces the target-language subtitle mirroring the source's
// timing and line count. Providers are not trusted to preserve parity: extra
// lines are trimmed and blank lines are padded with the source text, but a
// short result ends the task.
func (p *PipelineTask) Translate(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	t.SetState(types.StateTranslating)

	if err := p.loadSourceEntries(); err != nil {
		return err
	}

	if !t.ShouldTranslate {
		if util.FileExists(t.TargetSubtitlePath()) {
			entries, err := subtitle.ParseFile(t.TargetSubtitlePath())
			if err != nil {
				return apperrors.Wrap(apperrors.CodeTranslateFailed, "目标字幕解析失败 Target subtitle parse failed", err)
			}
			p.targetEntries = entries
		} else {
			p.targetEntries = p.sourceEntries
		}
		p.reportProgress(45, "无需翻译 No translation needed")
		return p.maybeFinishExtractOnly(true)
	}

	p.reportProgress(32, "正在翻译 Translating...")
	texts := subtitle.Texts(p.sourceEntries)
	translated, err := p.Collab.Translator.Translate(ctx, texts, t.Config.SourceLanguage, t.Config.TargetLanguage)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTranslateFailed, "翻译失败 Translation failed", err)
	}
	translated, err = reconcileTranslation(texts, translated)
	if err != nil {
		return err
	}

	p.targetEntries = make([]types.SubtitleEntry, len(p.sourceEntries))
	for i, src := range p.sourceEntries {
		entry := src
		entry.Text = translated[i]
		p.targetEntries[i] = entry
	}
	if err := subtitle.WriteFile(t.TargetSubtitlePath(), p.targetEntries); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "字幕写入失败 Subtitle write failed", err)
	}
	if t.Config.EmbedMode == types.EmbedHardDual || t.Config.EmbedMode == types.EmbedSoftDual {
		if err := subtitle.WriteBilingualFile(t.BilingualSubtitlePath(), p.sourceEntries, p.targetEntries); err != nil {
			return apperrors.Wrap(apperrors.CodeFileWriteError, "双语字幕写入失败 Bilingual subtitle write failed", err)
		}
	}

	log.GetLogger().Info("translation finished",
		zap.String("taskId", t.Uuid), zap.Int("lines", len(p.targetEntries)))
	p.reportProgress(45, "翻译完成 Translation done")
	return p.maybeFinishExtractOnly(true)
}

// reconcileTranslation enforces the one-output-per-input contract. A short
// result is unrecoverable because line-to-timing pairing would be guesswork.
func reconcileTranslation(source, translated []string) ([]string, error) {
	if len(translated) < len(source) {
		return nil, apperrors.New(apperrors.CodeTranslateMismatch,
			fmt.Sprintf("翻译行数不足 Translation returned %d lines for %d inputs", len(translated), len(source)))
	}
	if len(translated) > len(source) {
		log.GetLogger().Warn("translation returned extra lines, trimming",
			zap.Int("want", len(source)), zap.Int("got", len(translated)))
		translated = translated[:len(source)]
	}
	out := make([]string, len(source))
	for i, line := range translated {
		line = strings.TrimSpace(line)
		if line == "" {
			// keep the slot occupied so timing stays paired
			line = source[i]
		}
		out[i] = line
	}
	return out, nil
}

func parseExisting(path string) ([]types.SubtitleEntry, error) {
	entries, err := subtitle.ParseFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFileNotFound, "字幕文件缺失 Subtitle file missing", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyRecognition, "字幕文件为空 Subtitle file is empty")
	}
	return entries, nil
}

// loadSourceEntries reloads source.srt when the in-memory copy is missing,
// e.g. when recognition was skipped in a resumed run.
func (p *PipelineTask) loadSourceEntries() error {
	if len(p.sourceEntries) > 0 {
		return nil
	}
	entries, err := subtitle.ParseFile(p.Task.SourceSubtitlePath())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFileNotFound, "源字幕缺失 Source subtitle missing", err)
	}
	if len(entries) == 0 {
		return apperrors.New(apperrors.CodeEmptyRecognition, "源字幕为空 Source subtitle is empty")
	}
	p.sourceEntries = entries
	return nil
}
