package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transcriptColumns = `t.id, t.project_id, t.audio_asset_id, t.clip_index, t.text, t.language, t.segments, t.created`

func scanTranscript(row pgx.Row) (*persistence.Transcript, error) {
	var res persistence.Transcript
	var segments []byte
	if err := row.Scan(&res.ID, &res.ProjectID, &res.AudioAssetID, &res.ClipIndex, &res.Text, &res.Language,
		&segments, &res.Created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segments, &res.Segments); err != nil {
		return nil, fmt.Errorf("can't unmarshal segments: %w", err)
	}
	return &res, nil
}

func scanTranscripts(rows pgx.Rows, err error) ([]*persistence.Transcript, error) {
	if err != nil {
		return nil, fmt.Errorf("can't load transcripts: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan transcript: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// insertTranscript keeps the first transcript of the asset, tr gets the stored ID
func insertTranscript(ctx context.Context, tx pgx.Tx, now time.Time, tr *persistence.Transcript) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Segments == nil {
		tr.Segments = []persistence.Segment{}
	}
	segments, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("can't marshal segments: %w", err)
	}
	tr.Created = now
	if _, err := tx.Exec(ctx, `INSERT INTO transcripts(id, project_id, audio_asset_id, clip_index, text, language,
	segments, created) VALUES($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (audio_asset_id) DO NOTHING`,
		tr.ID, tr.ProjectID, tr.AudioAssetID, tr.ClipIndex, tr.Text, tr.Language, segments, now); err != nil {
		return fmt.Errorf("can't insert transcript: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT id, created FROM transcripts WHERE audio_asset_id = $1`,
		tr.AudioAssetID).Scan(&tr.ID, &tr.Created); err != nil {
		return fmt.Errorf("can't load transcript id: %w", err)
	}
	return nil
}

// LoadTranscript returns the transcript of the clip
func (db *DB) LoadTranscript(ctx context.Context, audioAssetID string) (*persistence.Transcript, error) {
	res, err := scanTranscript(db.pool.QueryRow(ctx, `SELECT `+transcriptColumns+` FROM transcripts t
		WHERE t.audio_asset_id = $1`, audioAssetID))
	if err != nil {
		return nil, fmt.Errorf("can't load transcript: %w", notFound(err))
	}
	return res, nil
}

// LoadCycleTranscripts returns transcripts of the cycle's completed STT jobs ordered by clip
func (db *DB) LoadCycleTranscripts(ctx context.Context, cycleID string) ([]*persistence.Transcript, error) {
	return scanTranscripts(db.pool.Query(ctx, `SELECT `+transcriptColumns+` FROM transcripts t
		JOIN jobs j ON j.audio_asset_id = t.audio_asset_id
		JOIN audio_assets a ON a.id = t.audio_asset_id
		WHERE j.cycle_id = $1 AND j.type = $2 AND j.status = $3
		ORDER BY a.clip_index, t.created`, cycleID, status.STT.String(), status.JobCompleted.String()))
}

// SaveStory upserts the project story and completes the EXTRACT job
func (db *DB) SaveStory(ctx context.Context, jobID string, st *persistence.ExtractedStory) (*persistence.ExtractedStory, error) {
	data, err := json.Marshal(st.Data)
	if err != nil {
		return nil, fmt.Errorf("can't marshal story: %w", err)
	}
	res := *st
	err = db.inTx(ctx, func(tx pgx.Tx) error {
		now := db.now()
		if err := tx.QueryRow(ctx, `INSERT INTO extracted_stories(id, project_id, cycle_id, data, version, updated)
		VALUES($1, $2, $3, $4, 1, $5)
		ON CONFLICT (project_id) DO UPDATE SET cycle_id = EXCLUDED.cycle_id, data = EXCLUDED.data,
		version = extracted_stories.version + 1, updated = EXCLUDED.updated
		RETURNING id, version, updated`, uuid.NewString(), st.ProjectID, st.CycleID, data, now).
			Scan(&res.ID, &res.Version, &res.Updated); err != nil {
			return fmt.Errorf("can't save story: %w", err)
		}
		_, err := completeJob(ctx, tx, now, jobID, map[string]interface{}{"storyId": res.ID, "version": res.Version})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LoadStory returns the project story
func (db *DB) LoadStory(ctx context.Context, projectID string) (*persistence.ExtractedStory, error) {
	var res persistence.ExtractedStory
	var data []byte
	err := db.pool.QueryRow(ctx, `SELECT id, project_id, cycle_id, data, version, updated FROM extracted_stories
		WHERE project_id = $1`, projectID).Scan(&res.ID, &res.ProjectID, &res.CycleID, &data, &res.Version, &res.Updated)
	if err != nil {
		return nil, fmt.Errorf("can't load story: %w", notFound(err))
	}
	if err := json.Unmarshal(data, &res.Data); err != nil {
		return nil, fmt.Errorf("can't unmarshal story: %w", err)
	}
	return &res, nil
}
