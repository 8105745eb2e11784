package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Vasilion/UnyX-Social/internal/api/middleware"
	"github.com/Vasilion/UnyX-Social/internal/service"
	"github.com/Vasilion/UnyX-Social/pkg/response"
)

type primaryImageRequest struct {
	ImageID string `json:"image_id" binding:"required"`
}

// ListItems 商品列表
// @Summary 商品列表
// @Tags 商品
// @Produce json
// @Param category query string false "分类，all 表示全部"
// @Success 200 {object} response.Response{data=[]model.MarketplaceItem}
// @Router /api/v1/marketplace/items [get]
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.itemService.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// GetItem 商品详情
// @Summary 商品详情
// @Tags 商品
// @Produce json
// @Param id path string true "商品ID"
// @Success 200 {object} response.Response{data=model.MarketplaceItem}
// @Failure 404 {object} response.Response
// @Router /api/v1/marketplace/items/{id} [get]
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.itemService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, item)
}

// CreateItem 发布商品（multipart，images 为图片文件，第一张为主图）
// @Summary 发布商品
// @Tags 商品
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "标题"
// @Param price formData number true "价格"
// @Param condition formData string true "成色"
// @Param category formData string true "分类"
// @Param location formData string true "所在地"
// @Param description formData string true "描述"
// @Param features formData string false "特性，JSON 数组"
// @Param images formData file false "图片"
// @Success 201 {object} response.Response{data=model.MarketplaceItem}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/marketplace/items [post]
func (h *Handler) CreateItem(c *gin.Context) {
	in, err := h.bindItem(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	uploads, closeAll, err := h.formUploads(c, "images")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()

	item, err := h.itemService.Create(c.Request.Context(), middleware.Caller(c), in, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateItem 编辑商品（仅限发布者）
// @Summary 编辑商品
// @Tags 商品
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "商品ID"
// @Param title formData string true "标题"
// @Param price formData number true "价格"
// @Param condition formData string true "成色"
// @Param category formData string true "分类"
// @Param location formData string true "所在地"
// @Param description formData string true "描述"
// @Param features formData string false "特性，JSON 数组"
// @Param new_images formData file false "新图片"
// @Param deleted_image_ids formData string false "删除的图片ID，JSON 数组"
// @Param primary_image_id formData string false "主图ID"
// @Success 200 {object} response.Response{data=model.MarketplaceItem}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/marketplace/items/{id} [put]
func (h *Handler) UpdateItem(c *gin.Context) {
	in, err := h.bindItem(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var deleted []string
	if raw := c.PostForm("deleted_image_ids"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &deleted); err != nil {
			response.BadRequest(c, "deleted_image_ids: expected a JSON array")
			return
		}
	}
	uploads, closeAll, err := h.formUploads(c, "new_images")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()

	item, err := h.itemService.Update(c.Request.Context(), middleware.Caller(c), c.Param("id"), service.ItemUpdate{
		ItemInput:      in,
		Uploads:        uploads,
		DeleteImageIDs: deleted,
		PrimaryImageID: c.PostForm("primary_image_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, item)
}

// SetPrimaryImage 设置主图
// @Summary 设置主图
// @Tags 商品
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "商品ID"
// @Param request body primaryImageRequest true "图片ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/marketplace/items/{id}/primary-image [put]
func (h *Handler) SetPrimaryImage(c *gin.Context) {
	var req primaryImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.itemService.SetPrimaryImage(c.Request.Context(), middleware.Caller(c), c.Param("id"), req.ImageID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteItem 删除商品及其消息与图片
// @Summary 删除商品
// @Tags 商品
// @Produce json
// @Security BearerAuth
// @Param id path string true "商品ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/marketplace/items/{id} [delete]
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.itemService.Delete(c.Request.Context(), middleware.Caller(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *Handler) bindItem(c *gin.Context) (service.ItemInput, error) {
	var in service.ItemInput
	if err := c.ShouldBind(&in); err != nil {
		return in, err
	}
	// features 以 JSON 数组或逗号分隔文本提交
	if raw := strings.TrimSpace(c.PostForm("features")); raw != "" {
		var features []string
		if err := json.Unmarshal([]byte(raw), &features); err != nil {
			features = strings.Split(raw, ",")
		}
		in.Features = in.Features[:0]
		for _, f := range features {
			if f = strings.TrimSpace(f); f != "" {
				in.Features = append(in.Features, f)
			}
		}
	}
	return in, nil
}

func (h *Handler) formUploads(c *gin.Context, field string) ([]service.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, err
	}
	files := form.File[field]
	uploads := make([]service.Upload, 0, len(files))
	opened := make([]io.Closer, 0, len(files))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range files {
		f, err := openPart(fh)
		if err != nil {
			closeAll()
			return nil, noop, err
		}
		opened = append(opened, f)
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Body: f})
	}
	return uploads, closeAll, nil
}

func openPart(fh *multipart.FileHeader) (multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	return f, nil
}
