package extract

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksmeta/pkg/utils"
)

func testMapper() *Mapper {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewMapper(15, logrus.NewEntry(log))
}

func mustState(t *testing.T, body string) *State {
	t.Helper()
	state, err := Extract(body)
	require.NoError(t, err)
	return state
}

func TestMapFullRecord(t *testing.T) {
	const ts = int64(1700000000000)
	body := fmt.Sprintf(`<script>window.INIT_STATE = {"fw/photo":{
		"photo":{"photoId":"521854625001176962","userId":"3xzncfss3aqb5uq","userName":"tester",
			"caption":"my caption","likeCount":120,"commentCount":7,"viewCount":99000,"shareCount":3,
			"duration":15533,"width":720,"height":1280,"timestamp":%d},
		"counts":{"fanCount":1500,"collectionCount":12,"photoCount":88}}}</script>`, ts)

	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)

	assert.Equal(t, "521854625001176962", rec.PhotoID)
	assert.False(t, rec.IDNonNumeric)
	assert.Equal(t, "3xzncfss3aqb5uq", rec.AuthorID)
	assert.Equal(t, "tester", rec.AuthorName)
	assert.Equal(t, "my caption", rec.Caption)
	assert.Equal(t, int64(1500), rec.FanCount)
	assert.Equal(t, int64(12), rec.CollectionCount)
	assert.Equal(t, int64(88), rec.WorkCount)
	assert.Equal(t, int64(120), rec.LikeCount)
	assert.Equal(t, int64(7), rec.CommentCount)
	assert.Equal(t, int64(99000), rec.ViewCount)
	assert.Equal(t, int64(3), rec.ShareCount)
	assert.Equal(t, int64(15533), rec.Duration)
	assert.Equal(t, int64(720), rec.Width)
	assert.Equal(t, int64(1280), rec.Height)
	assert.Equal(t, ts, rec.TimestampMS)
	assert.Equal(t, time.UnixMilli(ts).Format("2006-01-02 15:04:05"), rec.PublishTime)
}

func TestMapSiblingNumericIDWins(t *testing.T) {
	// The matched subtree only has the slug; the authoritative numeric
	// identifier lives in a sibling structure.
	body := `<script>window.INIT_STATE = {
		"fw/photo":{"photo":{"photoId":"3xt9wjdp3xb9gpm","userName":"a"},"counts":{}},
		"share":{"nested":{"photoId":"521854625001176962"}}}</script>`

	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)
	assert.Equal(t, "521854625001176962", rec.PhotoID)
	assert.False(t, rec.IDNonNumeric)
}

func TestMapFirstNumericInDocumentOrderWins(t *testing.T) {
	body := `<script>window.INIT_STATE = {
		"a":{"list":[{"photoId":"111111111111111111"},{"photoId":"222222222222222222"}]},
		"fw/photo":{"photo":{"photoId":"3xslug"},"counts":{}}}</script>`

	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)
	assert.Equal(t, "111111111111111111", rec.PhotoID)
}

func TestMapNumericCandidateFilters(t *testing.T) {
	t.Run("short numeric values are not canonical", func(t *testing.T) {
		body := `<script>window.INIT_STATE = {
			"x":{"photoId":"12345"},
			"fw/photo":{"photo":{"photoId":"3xslug"},"counts":{}}}</script>`
		rec, err := testMapper().Map(mustState(t, body))
		require.NoError(t, err)
		assert.Equal(t, "3xslug", rec.PhotoID)
		assert.True(t, rec.IDNonNumeric)
	})

	t.Run("numeric JSON number value accepted", func(t *testing.T) {
		body := `<script>window.INIT_STATE = {
			"x":{"photoId":521854625001176962},
			"fw/photo":{"photo":{"photoId":"3xslug"},"counts":{}}}</script>`
		rec, err := testMapper().Map(mustState(t, body))
		require.NoError(t, err)
		assert.Equal(t, "521854625001176962", rec.PhotoID)
		assert.False(t, rec.IDNonNumeric)
	})

	t.Run("other keys never match", func(t *testing.T) {
		body := `<script>window.INIT_STATE = {
			"x":{"shareId":"521854625001176962"},
			"fw/photo":{"photo":{"photoId":"3xslug"},"counts":{}}}</script>`
		rec, err := testMapper().Map(mustState(t, body))
		require.NoError(t, err)
		assert.Equal(t, "3xslug", rec.PhotoID)
		assert.True(t, rec.IDNonNumeric)
	})
}

func TestMapOwnNumericIDKeptWithoutCandidates(t *testing.T) {
	// Subtree identifier is numeric but below the canonical length; kept
	// as-is and not flagged since it is still all digits.
	body := `<script>window.INIT_STATE = {"fw/photo":{"photo":{"photoId":"987654"},"counts":{}}}</script>`
	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)
	assert.Equal(t, "987654", rec.PhotoID)
	assert.False(t, rec.IDNonNumeric)
}

func TestMapMissingIdentifier(t *testing.T) {
	body := `<script>window.INIT_STATE = {"fw/photo":{"photo":{"userName":"x"},"counts":{}}}</script>`
	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)
	assert.Empty(t, rec.PhotoID)
	assert.True(t, rec.IDNonNumeric)
}

func TestMapTimestampFallback(t *testing.T) {
	t.Run("non-numeric timestamp degrades to raw string", func(t *testing.T) {
		body := `<script>window.INIT_STATE = {"fw/photo":{"photo":{"photoId":"521854625001176962","timestamp":"soon"},"counts":{}}}</script>`
		rec, err := testMapper().Map(mustState(t, body))
		require.NoError(t, err)
		assert.Equal(t, "soon", rec.PublishTime)
		assert.Zero(t, rec.TimestampMS)
	})

	t.Run("absent timestamp leaves empty", func(t *testing.T) {
		body := `<script>window.INIT_STATE = {"fw/photo":{"photo":{"photoId":"521854625001176962"},"counts":{}}}</script>`
		rec, err := testMapper().Map(mustState(t, body))
		require.NoError(t, err)
		assert.Empty(t, rec.PublishTime)
	})
}

func TestMapDefaultsWhenFieldsAbsent(t *testing.T) {
	body := `<script>window.INIT_STATE = {"fw/photo":{"photo":{"photoId":"521854625001176962"},"counts":{}}}</script>`
	rec, err := testMapper().Map(mustState(t, body))
	require.NoError(t, err)

	assert.Zero(t, rec.FanCount)
	assert.Zero(t, rec.LikeCount)
	assert.Zero(t, rec.Duration)
	assert.Empty(t, rec.AuthorName)
	assert.Empty(t, rec.Caption)
}

func TestMapNoDetailNode(t *testing.T) {
	body := `<script>window.INIT_STATE = {"a":{"photo":{}},"b":{"other":1}}</script>`
	rec, err := testMapper().Map(mustState(t, body))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrNoDetailNode)
	assert.Nil(t, rec)
}

func TestFirstNumericValueTruncatedInput(t *testing.T) {
	// Decoder errors just end the scan
	assert.Empty(t, firstNumericValue([]byte(`{"photoId":"5218`), photoIDKey, 15))
	assert.Empty(t, firstNumericValue(nil, photoIDKey, 15))
}
