package crawlertest

// HomeURL 首页样例地址
const HomeURL = "https://hotpic.one/nsfw/"

// AlbumURL 相册样例地址
const AlbumURL = "https://hotpic.one/album/summer-2024"

// HomeHTML 首页样例: 5个相册卡片,其中两个通过不同包裹结构指向同一相册
const HomeHTML = `<!doctype html>
<html><body>
<div class="container">
  <div class="row">
    <div class="card">
      <a data-zoom="false" data-autofit="false" data-preload="true" data-download="true" data-controls="false"
         href="/album/aaa" data-title="Album A"><img class="img-fluid" data-src="https://cdn.hotpic.one/a.jpg" alt="A"></a>
    </div>
    <div class="card">
      <a data-zoom="false" data-autofit="false" data-preload="true" data-download="true" data-controls="false"
         href="/album/bbb" title="Album B"><img class="img-fluid" src="/thumbs/b.jpg" alt="B"></a>
    </div>
  </div>
  <section class="featured">
    <span class="badge-wrap">
      <a data-zoom="false" data-autofit="false" data-preload="true" data-download="true" data-controls="false"
         href="/album/aaa"><img src="https://cdn.hotpic.one/a-featured.jpg" alt="A again"></a>
    </span>
  </section>
  <div class="row">
    <div class="card">
      <a data-zoom="false" data-autofit="false" data-preload="true" data-download="true" data-controls="false"
         href="/album/ccc"><img class="img-fluid" data-src="https://cdn.hotpic.one/c.jpg" alt="Album C"></a>
    </div>
    <div class="card">
      <a data-zoom="false" data-autofit="false" data-preload="true" data-download="true" data-controls="false"
         href="/album/ddd" data-title="Album D"></a>
    </div>
  </div>
  <a href="/about">About</a>
</div>
</body></html>`

// AlbumHTML 相册样例: 3张图片,1个缺少data-src-mp4但href指向mp4的视频
const AlbumHTML = `<!doctype html>
<html><body>
<div class="hotgrid">
  <div class="hotplay"><a class="spotlight" href="https://cdn.hotpic.one/1.jpg" data-src="https://cdn.hotpic.one/1.webp" data-title="one"></a></div>
  <div class="hotplay"><a class="spotlight" href="#"><img data-src="https://cdn.hotpic.one/2.avif" alt="two"></a></div>
  <div class="hotplay"><a class="spotlight" href="/media/3.png"></a></div>
  <div class="hotplay"><a class="spotlight" href="https://cdn.hotpic.one/v/clip.mp4" data-poster="https://cdn.hotpic.one/v/clip.jpg"></a></div>
</div>
</body></html>`

// EmptyAlbumHTML 结构完整但没有媒体的相册
const EmptyAlbumHTML = `<!doctype html>
<html><body><div class="hotgrid"></div></body></html>`

// LoadingHTML 内容尚未加载的页面
const LoadingHTML = `<!doctype html>
<html><body><div class="spinner">loading</div></body></html>`
