package widgettoolkit_test

import (
	"strings"
	"testing"

	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/nordeck/matrix-widget-toolkit-sub000/widgettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigateTo(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	ctx := testContext(t)

	err := api.NavigateTo(ctx, "https://example.com/#/!room:example.com")
	var invalid widgettoolkit.InvalidNavigationURIError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, host.Calls(spec.ActionNavigate))

	require.NoError(t, api.NavigateTo(ctx, "https://matrix.to/#/!room:example.com"))
	calls := host.Calls(spec.ActionNavigate)
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"uri":"https://matrix.to/#/!room:example.com"}`, string(calls[0].Data))
}

func TestSearchUserDirectory(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	host.Handle(spec.ActionUserDirectorySearch, func(data spec.RawJSON) (interface{}, error) {
		return widgettoolkit.UserDirectoryResult{
			Limited: true,
			Results: []widgettoolkit.UserDirectoryEntry{{UserID: "@alice:example.com", DisplayName: "Alice"}},
		}, nil
	})

	res, err := api.SearchUserDirectory(testContext(t), "ali", 5)
	require.NoError(t, err)
	assert.True(t, res.Limited)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Alice", res.Results[0].DisplayName)
	assert.JSONEq(t, `{"search_term":"ali","limit":5}`, string(host.Calls(spec.ActionUserDirectorySearch)[0].Data))
}

func TestGetMediaConfig(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)

	config, err := api.GetMediaConfig(testContext(t))
	require.NoError(t, err)
	require.NotNil(t, config.UploadSize)
	assert.Equal(t, int64(10485760), *config.UploadSize)
}

func TestUploadFile(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)

	res, err := api.UploadFile(testContext(t), []byte("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ContentURI, "mxc://"+widgettest.ServerName+"/"))
	assert.Equal(t, "aGVsbG8=", gjsonString(host.Calls(spec.ActionUploadFile)[0].Data, "file"))
}

func TestUploadFileFailure(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	host.FailAction(spec.ActionUploadFile, "Too large")

	_, err := api.UploadFile(testContext(t), []byte("hello"))
	assert.EqualError(t, err, "Too large")
}
