package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSource() Source {
	return Source{
		ID:            1,
		Name:          "Test Source",
		URL:           "https://example.test/feed.xml",
		SourceType:    SourceTypeRSS,
		Enabled:       true,
		FetchInterval: 5 * time.Minute,
	}
}

func TestSource_Validate_OK(t *testing.T) {
	s := validSource()
	assert.NoError(t, s.Validate())
}

func TestSource_Validate_DefaultsEmptyTypeToRSS(t *testing.T) {
	s := validSource()
	s.SourceType = ""
	assert.NoError(t, s.Validate())
	assert.Equal(t, SourceTypeRSS, s.SourceType)
}

func TestSource_Validate_InvalidType(t *testing.T) {
	s := validSource()
	s.SourceType = "bogus"
	assert.Error(t, s.Validate())
}

func TestSource_Validate_CustomRequiresConfig(t *testing.T) {
	s := validSource()
	s.SourceType = SourceTypeCustom
	s.Config = nil
	assert.Error(t, s.Validate())

	s.Config = map[string]string{"item_selector": ".entry"}
	assert.NoError(t, s.Validate())
}

func TestSource_Validate_GenericSkipsURLCheck(t *testing.T) {
	s := validSource()
	s.SourceType = SourceTypeGeneric
	s.URL = ""
	assert.NoError(t, s.Validate())
}

func TestSource_RecordSuccess_ResetsErrorCount(t *testing.T) {
	s := validSource()
	s.ErrorCount = 3
	s.RecordSuccess(time.Now())
	assert.Equal(t, 0, s.ErrorCount)
	assert.Empty(t, s.LastError)
	assert.NotNil(t, s.LastSuccess)
}

func TestSource_RecordFailure_Increments(t *testing.T) {
	s := validSource()
	s.RecordFailure(time.Now(), assert.AnError)
	s.RecordFailure(time.Now(), assert.AnError)
	assert.Equal(t, 2, s.ErrorCount)
	assert.NotEmpty(t, s.LastError)
}

func TestSource_ShouldDisable(t *testing.T) {
	s := validSource()
	s.ErrorCount = 5
	assert.False(t, s.ShouldDisable(10))
	assert.True(t, s.ShouldDisable(5))
	assert.False(t, s.ShouldDisable(0))
}
