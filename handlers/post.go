package handlers

import (
	"net/http"

	"postboard/feed"
	"postboard/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetFeed(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.feed.Feed(ctx, middleware.Viewer(c), limit, c.Query("before"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) GetExplore(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.feed.Explore(ctx, middleware.Viewer(c), c.Query("before"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) Search(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.feed.Search(ctx, middleware.Viewer(c), c.Query("q"), c.Query("before"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) GetPost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.feed.Post(ctx, middleware.Viewer(c), c.Param("member"), c.Param("post"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handlers) GetComments(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.feed.Comments(ctx, middleware.Viewer(c), c.Param("post"), c.Query("before"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) CreatePost(c *gin.Context) {
	var req feed.CreatePostInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.CreatePost(ctx, middleware.Viewer(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"postId":  id.Hex(),
	})
}

func (h *Handlers) DeletePost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.DeletePost(ctx, middleware.Viewer(c), c.Param("post"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted", "postId": id.Hex()})
}

func (h *Handlers) PinPost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.Pin(ctx, middleware.Viewer(c), c.Param("post"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post pinned", "postId": id.Hex()})
}

func (h *Handlers) UnpinPost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.Unpin(ctx, middleware.Viewer(c), c.Param("post"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post unpinned", "postId": id.Hex()})
}

func (h *Handlers) React(c *gin.Context) {
	var req feed.ReactInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reaction, err := h.feed.React(ctx, middleware.Viewer(c), c.Param("post"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reaction)
}

func (h *Handlers) Comment(c *gin.Context) {
	var req feed.CommentInput
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.Comment(ctx, middleware.Viewer(c), c.Param("post"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Comment created successfully",
		"commentId": id.Hex(),
	})
}
