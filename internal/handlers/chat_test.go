package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatline/internal/mocks"
	"chatline/internal/models"
	"chatline/internal/repositories"
	"chatline/internal/services"
)

func setupChatRouter(messages *mocks.MessageRepositoryMock, users *mocks.UserRepositoryMock, media *mocks.ObjectStoreMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewMessageService(messages, users, media, nil)
	handler := NewMessageHandler(svc, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/messages/users", handler.ListUsers)
	r.GET("/messages/:id", handler.GetMessages)
	r.POST("/messages/send/:id", handler.SendMessage)
	return r
}

func TestListUsersSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupChatRouter(new(mocks.MessageRepositoryMock), users, nil)
	users.On("ListUsersExcept", mock.Anything, 1).Return([]models.UserSummary{{ID: 2, FullName: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[{"id":2,"full_name":"bob","avatar_url":""}]}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestGetMessagesSuccess(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(messages, new(mocks.UserRepositoryMock), nil)
	messages.On("ListDirectMessages", mock.Anything, 1, 2).Return([]models.Message{models.NewDirectMessage(2, 1, "yo", "")}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestGetMessagesInvalidID(t *testing.T) {
	router := setupChatRouter(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), nil)

	req := httptest.NewRequest(http.MethodGet, "/messages/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageSuccess(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupChatRouter(messages, users, nil)

	users.On("FindByID", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	saved := models.NewDirectMessage(1, 2, "hello", "")
	saved.ID = 11
	messages.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == 1 && m.ReceiverID != nil && *m.ReceiverID == 2 && m.Text == "hello"
	})).Return(saved, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messages.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestSendMessageWithImage(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	media := new(mocks.ObjectStoreMock)
	router := setupChatRouter(messages, users, media)

	users.On("FindByID", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	media.On("Store", mock.Anything, mock.Anything, "image/png").Return("https://cdn.test/a.png", nil).Once()
	messages.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ImageURL == "https://cdn.test/a.png" && m.Text == ""
	})).Return(models.NewDirectMessage(1, 2, "", "https://cdn.test/a.png"), nil).Once()

	body := `{"image":"data:image/png;base64,iVBORw0KGgo="}`
	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	media.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendMessageEmptyRejected(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(messages, new(mocks.UserRepositoryMock), nil)

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"text":"  "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messages.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupChatRouter(new(mocks.MessageRepositoryMock), users, nil)
	users.On("FindByID", mock.Anything, 99).Return(nil, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/99", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
