package conversationrequests

// UpdateConversationRequest represents the request to update a conversation
type UpdateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// ListConversationsQueryParams represents query parameters for listing conversations
type ListConversationsQueryParams struct {
	Limit *int `form:"limit"`
}
