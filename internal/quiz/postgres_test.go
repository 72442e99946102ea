package quiz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnseenQuestionsQuery(t *testing.T) {
	stmt, args, err := unseenQuestionsQuery("easy", []string{"q1", "q2"}, 20).ToSql()
	require.NoError(t, err)

	require.Equal(t, "SELECT id, difficulty, content FROM questions WHERE difficulty = $1 AND id NOT IN ($2,$3) LIMIT 20", stmt)
	require.Equal(t, []any{"easy", "q1", "q2"}, args)
}

func TestUnseenQuestionsQuery_Sentinel(t *testing.T) {
	stmt, args, err := unseenQuestionsQuery("hard", []string{SentinelQuestionID}, 5).ToSql()
	require.NoError(t, err)

	require.Equal(t, "SELECT id, difficulty, content FROM questions WHERE difficulty = $1 AND id NOT IN ($2) LIMIT 5", stmt)
	require.Equal(t, []any{"hard", SentinelQuestionID}, args)
}

func TestRecordAnsweredQuery(t *testing.T) {
	stmt, args, err := recordAnsweredQuery("u1", []string{"q1", "q2"}).ToSql()
	require.NoError(t, err)

	require.Equal(t, "INSERT INTO answered_history (user_id,question_id) VALUES ($1,$2),($3,$4) ON CONFLICT (user_id, question_id) DO NOTHING", stmt)
	require.Equal(t, []any{"u1", "q1", "u1", "q2"}, args)
}
